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

package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestReadFileLayers(t *testing.T) {
	require := require.New(t)

	fs := pflag.NewFlagSet("advisor", pflag.ContinueOnError)
	fs.String("rec", "random", "")
	require.NoError(fs.Parse([]string{"--rec=average"}))

	require.NoError(os.Setenv("LAB_PORT", "5999"))
	defer os.Unsetenv("LAB_PORT")

	cfg, err := ReadFile("testdata/advisor_config.yaml", fs, map[string]string{"rec": "advisor.recommender"})
	require.NoError(err)

	// file
	require.Equal("alice", cfg.GetString("advisor.user"))
	require.Equal(2*time.Second, cfg.GetDuration("advisor.tickInterval"))
	require.Equal("elapsedTime", cfg.GetString("advisor.termination.condition"))
	require.Equal("lab.internal", cfg.GetString("lab.hostname"))
	// legacy environment
	require.Equal(5999, cfg.GetInt("lab.httpport"))
	// flag
	require.Equal("average", cfg.GetString("advisor.recommender"))
	// default
	require.Equal(4, cfg.GetInt("advisor.parallelism"))
}

func TestReadFileUnknownFlag(t *testing.T) {
	fs := pflag.NewFlagSet("advisor", pflag.ContinueOnError)
	_, err := ReadFile("testdata/advisor_config.yaml", fs, map[string]string{"missing": "advisor.user"})
	require.Error(t, err)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile("testdata/does_not_exist.yaml", nil, nil)
	require.Error(t, err)
}
