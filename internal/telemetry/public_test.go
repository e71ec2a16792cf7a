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

package telemetry

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"automl.dev/advisor/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeParams struct {
	cfg config.View
}

func (p *fakeParams) Config() config.View  { return p.cfg }
func (p *fakeParams) ServiceName() string { return "advisor" }

type fakeBindings struct {
	mux     *http.ServeMux
	routes  []string
	closers []func() error
}

func (b *fakeBindings) TelemetryHandle(pattern string, handler http.Handler) {
	b.routes = append(b.routes, pattern)
	b.mux.Handle(pattern, handler)
}

func (b *fakeBindings) TelemetryHandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	b.routes = append(b.routes, pattern)
	b.mux.HandleFunc(pattern, handler)
}

func (b *fakeBindings) AddCloser(c func()) {
	b.closers = append(b.closers, func() error { c(); return nil })
}

func (b *fakeBindings) AddCloserErr(c func() error) {
	b.closers = append(b.closers, c)
}

func TestSetupDisabled(t *testing.T) {
	b := &fakeBindings{mux: http.NewServeMux()}
	require.NoError(t, Setup(&fakeParams{cfg: viper.New()}, b))
	assert.Empty(t, b.routes)
	assert.Empty(t, b.closers)
}

func TestSetupPrometheusAndZpages(t *testing.T) {
	cfg := viper.New()
	cfg.Set("telemetry.reportingPeriod", "not a duration")
	cfg.Set(ConfigNameEnableMetrics, true)
	cfg.Set(configNamePrometheusEndpoint, "/metrics")
	cfg.Set(configNameTelemetryZpagesEnabled, true)

	b := &fakeBindings{mux: http.NewServeMux()}
	require.NoError(t, Setup(&fakeParams{cfg: cfg}, b))
	sort.Strings(b.routes)
	assert.Contains(t, b.routes, "/metrics")
	assert.Contains(t, b.routes, "/configz")
	assert.Contains(t, b.routes, "/help")
	assert.Contains(t, b.routes, "/debug/tracez")
	require.Len(t, b.closers, 1)

	rec := httptest.NewRecorder()
	b.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	for _, c := range b.closers {
		assert.NoError(t, c())
	}
}
