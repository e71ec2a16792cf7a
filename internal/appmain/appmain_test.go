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

package appmain

import (
	"context"
	"errors"
	"io/ioutil"
	"net"
	"net/http"
	"testing"
	"time"

	"automl.dev/advisor/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() (config.View, error) {
	cfg := viper.New()
	cfg.Set("telemetry.reportingPeriod", "1m")
	cfg.Set("api.advisor.httpport", 0)
	return cfg, nil
}

func TestStartApplicationServesAndStops(t *testing.T) {
	stopped := false
	var bgDone bool
	bind := func(p *Params, b *Bindings) error {
		assert.Equal(t, "advisor", p.ServiceName())
		b.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("hi"))
		})
		b.AddCloser(func() { stopped = true })
		b.Background(func(ctx context.Context) error {
			<-ctx.Done()
			bgDone = true
			return nil
		})
		return nil
	}
	a, err := StartApplication("advisor", bind, testConfig, net.Listen)
	require.NoError(t, err)
	addr := a.Address()

	resp, err := http.Get("http://" + addr + "/hello")
	require.NoError(t, err)
	body, _ := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "hi", string(body))

	resp, err = http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, a.Stop())
	assert.True(t, stopped)
	assert.True(t, bgDone)
}

func TestBindFailureStopsApplication(t *testing.T) {
	closed := false
	boom := errors.New("boom")
	bind := func(p *Params, b *Bindings) error {
		b.AddCloser(func() { closed = true })
		return boom
	}
	_, err := StartApplication("advisor", bind, testConfig, net.Listen)
	assert.Equal(t, boom, err)
	assert.True(t, closed)
}

func TestBackgroundFailureStopsApplication(t *testing.T) {
	boom := errors.New("boom")
	bind := func(p *Params, b *Bindings) error {
		b.Background(func(ctx context.Context) error { return boom })
		return nil
	}
	a, err := StartApplication("advisor", bind, testConfig, net.Listen)
	require.NoError(t, err)

	select {
	case <-a.Failed():
	case <-time.After(5 * time.Second):
		t.Fatal("failure not reported")
	}
	assert.Equal(t, boom, a.Stop())
}
