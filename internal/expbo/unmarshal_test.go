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

package expbo

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalExponentialBackOff(t *testing.T) {
	assert := assert.New(t)
	b := backoff.NewExponentialBackOff()
	require.NoError(t, UnmarshalExponentialBackOff("[0.250 30] *1.5 ~0.33 <300", b))

	assert.Equal(250*time.Millisecond, b.InitialInterval)
	assert.Equal(30*time.Second, b.MaxInterval)
	assert.InDelta(1.5, b.Multiplier, 1e-8)
	assert.InDelta(0.33, b.RandomizationFactor, 1e-8)
	assert.Equal(5*time.Minute, b.MaxElapsedTime)
}

func TestParseKeepsDefaults(t *testing.T) {
	assert := assert.New(t)
	b, err := Parse("<10")
	require.NoError(t, err)
	assert.Equal(10*time.Second, b.MaxElapsedTime)
	assert.Equal(backoff.DefaultInitialInterval, b.InitialInterval)
	assert.Equal(backoff.DefaultMultiplier, b.Multiplier)
}

func TestParseNone(t *testing.T) {
	for _, s := range []string{"", "  ", "none"} {
		b, err := Parse(s)
		assert.NoError(t, err)
		assert.Nil(t, b)
	}
}

func TestUnmarshalErrors(t *testing.T) {
	for _, s := range []string{"[x 1]", "[1 y]", "*z", "~q", "<w", "[1]", "nonsense"} {
		b := backoff.NewExponentialBackOff()
		assert.Error(t, UnmarshalExponentialBackOff(s, b), s)
	}
}
