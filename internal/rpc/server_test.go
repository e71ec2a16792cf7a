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

package rpc

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerServesHealthAndHandlers(t *testing.T) {
	lh := MustListen()
	p := NewServerParamsFromListener(lh)
	var healthy atomic.Bool
	healthy.Store(true)
	p.AddHealthCheckFunc(func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("redis is down")
	})
	p.ServeMux.HandleFunc("/campaigns", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[]")
	})

	s := &Server{}
	require.NoError(t, s.Start(p))
	defer s.Stop()

	base := fmt.Sprintf("http://localhost:%d", lh.Number())
	get := func(path string) (int, string) {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := ioutil.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(b)
	}

	code, body := get("/campaigns")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "[]", body)

	code, _ = get("/healthz?readiness=true")
	assert.Equal(t, http.StatusOK, code)

	healthy.Store(false)
	code, body = get("/healthz?readiness=true")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "redis is down")

	// Liveness does not run the probes.
	code, _ = get("/healthz")
	assert.Equal(t, http.StatusOK, code)

	assert.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
}
