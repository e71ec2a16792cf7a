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
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestCacherRebuildsOnChange(t *testing.T) {
	require := require.New(t)
	cfg := viper.New()
	cfg.Set("advisor.batchSize", 3)
	cfg.Set("advisor.tickInterval", time.Second)

	builds := 0
	c := NewCacher(cfg, func(cfg View) (int, error) {
		builds++
		return cfg.GetInt("advisor.batchSize") * int(cfg.GetDuration("advisor.tickInterval")/time.Second), nil
	})

	v, err := c.Get()
	require.NoError(err)
	require.Equal(3, v)

	v, err = c.Get()
	require.NoError(err)
	require.Equal(3, v)
	require.Equal(1, builds)

	cfg.Set("advisor.tickInterval", 2*time.Second)
	v, err = c.Get()
	require.NoError(err)
	require.Equal(6, v)
	require.Equal(2, builds)

	cfg.Set("unrelated", "value")
	_, err = c.Get()
	require.NoError(err)
	require.Equal(2, builds)

	c.ForceReset()
	_, err = c.Get()
	require.NoError(err)
	require.Equal(3, builds)
}

func TestCacherDoesNotCacheErrors(t *testing.T) {
	require := require.New(t)
	cfg := viper.New()

	fail := true
	c := NewCacher(cfg, func(cfg View) (string, error) {
		if fail {
			return "", errors.New("bad")
		}
		return cfg.GetString("x"), nil
	})

	_, err := c.Get()
	require.Error(err)

	fail = false
	cfg.Set("x", "ok")
	v, err := c.Get()
	require.NoError(err)
	require.Equal("ok", v)
}
