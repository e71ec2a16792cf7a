// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package campaign

import (
	"testing"
	"time"

	"automl.dev/advisor/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCondition(t *testing.T) {
	for in, want := range map[string]Condition{
		"fixedCount":  FixedCount,
		"n_recs":      FixedCount,
		"elapsedTime": ElapsedTime,
		"time":        ElapsedTime,
		"unbounded":   Unbounded,
		"continuous":  Unbounded,
	} {
		got, err := ParseCondition(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCondition("forever")
	assert.Error(t, err)
}

func TestPolicyFromConfig(t *testing.T) {
	var cfg config.Mutable = viper.New()
	cfg.Set("advisor.termination.condition", "time")
	cfg.Set("advisor.termination.target", 1.5)
	cfg.Set("advisor.batchSize", 4)

	p, err := PolicyFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, ElapsedTime, p.Condition)
	assert.Equal(t, 1500*time.Millisecond, p.Duration())
	assert.Equal(t, 4, p.BatchSize)

	cfg.Set("advisor.termination.target", 0)
	_, err = PolicyFromConfig(cfg)
	assert.Error(t, err)

	cfg.Set("advisor.termination.condition", "n_recs")
	p, err = PolicyFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, Unbounded, p.Condition)
}
