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
	"net/url"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestConfigz(t *testing.T) {
	assert := assert.New(t)
	cfg := viper.New()
	cfg.Set("char-val", "b")
	cfg.Set("int-val", 1)
	cfg.Set("bool-val", true)
	cfg.Set("lab.apiKey", "s3cret")
	cz := &configz{cfg: cfg}
	czFunc := func(w http.ResponseWriter, r *http.Request) {
		cz.ServeHTTP(w, r)
	}
	assert.HTTPSuccess(czFunc, http.MethodGet, "/", url.Values{}, "")
	assert.HTTPBodyContains(czFunc, http.MethodGet, "/", url.Values{}, `<title>Advisor Configuration</title>`)
	assert.HTTPBodyContains(czFunc, http.MethodGet, "/", url.Values{}, `<tr><td>bool-val</td><td>true</td></tr>`)
	assert.HTTPBodyContains(czFunc, http.MethodGet, "/", url.Values{}, `<tr><td>int-val</td><td>1</td></tr>`)
	assert.HTTPBodyContains(czFunc, http.MethodGet, "/", url.Values{}, `<tr><td>lab.apikey</td><td>&lt;redacted&gt;</td></tr>`)
	assert.HTTPBodyNotContains(czFunc, http.MethodGet, "/", url.Values{}, "s3cret")
}

func TestConfigzNeedsViper(t *testing.T) {
	cz := &configz{cfg: nil}
	assert.HTTPError(t, cz.ServeHTTP, http.MethodGet, "/", url.Values{})
}
