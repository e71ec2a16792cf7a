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
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strings"

	"automl.dev/advisor/internal/config"
	"github.com/spf13/viper"
)

const (
	configZTemplateName = "configz"
	configEndpoint      = "/configz"
	configPage          = `<!DOCTYPE html>
<head>
	<title>Advisor Configuration</title>
</head>
<body>
<table>
<tr><th>Key</th><th>Value</th></tr>
{{ range . }}
<tr><td>{{ .Key }}</td><td>{{ .Value }}</td></tr>
{{ end }}
</table>
</body>
`
	redacted = "<redacted>"
)

var (
	configPageTemplate = template.Must(template.New(configZTemplateName).Parse(configPage))
	// secretKeySuffixes are config keys whose values are never displayed.
	secretKeySuffixes = []string{"apikey", "password"}
)

type configz struct {
	cfg config.View
}

type configZValue struct {
	Key   string
	Value interface{}
}

// ServeHTTP serves the /configz endpoint that allows a user to view the configuration of the server.
func (cz *configz) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	cfg, ok := cz.cfg.(*viper.Viper)
	if !ok {
		http.Error(w, "Configuration is not a *viper.Viper object", http.StatusInternalServerError)
		return
	}
	values := []configZValue{}
	for _, k := range cfg.AllKeys() {
		var v interface{} = cfg.Get(k)
		for _, suffix := range secretKeySuffixes {
			if strings.HasSuffix(strings.ToLower(k), suffix) {
				v = redacted
			}
		}
		values = append(values, configZValue{Key: k, Value: v})
	}
	sort.Slice(values, func(lhs int, rhs int) bool {
		return values[lhs].Key < values[rhs].Key
	})
	err := configPageTemplate.Execute(w, values)
	if err != nil {
		http.Error(w, fmt.Sprintf("cannot render HTML template, %s", err), http.StatusInternalServerError)
	}
}

func bindConfigz(p Params, b Bindings) error {
	cfg := p.Config()
	if !cfg.GetBool(configNameTelemetryZpagesEnabled) {
		return nil
	}
	b.TelemetryHandle(configEndpoint, &configz{cfg: cfg})
	return nil
}
