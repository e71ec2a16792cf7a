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

// Package telemetry wires metrics, traces and the operator endpoints of the
// advisor HTTP server.
package telemetry

import (
	"net/http"
	"time"

	"automl.dev/advisor/internal/config"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/stats/view"
)

const (
	configNameTelemetryReportingPeriod = "telemetry.reportingPeriod"
	configNameTelemetryZpagesEnabled   = "telemetry.zpages.enable"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "advisor",
		"component": "telemetry",
	})
)

// Params are the inputs telemetry is configured from.
type Params interface {
	Config() config.View
	ServiceName() string
}

// Bindings registers endpoints and release hooks with the running server.
type Bindings interface {
	TelemetryHandle(pattern string, handler http.Handler)
	TelemetryHandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request))
	AddCloser(c func())
	AddCloserErr(c func() error)
}

// Setup configures the telemetry for the server.
func Setup(p Params, b Bindings) error {
	bindings := []func(p Params, b Bindings) error{
		configureOpencensus,
		bindJaeger,
		bindPrometheus,
		bindStackDriverMetrics,
		bindOpenCensusAgent,
		bindZpages,
		bindHelp,
		bindConfigz,
	}

	for _, f := range bindings {
		err := f(p, b)
		if err != nil {
			return err
		}
	}

	return nil
}

func configureOpencensus(p Params, b Bindings) error {
	cfg := p.Config()
	periodString := cfg.GetString(configNameTelemetryReportingPeriod)
	reportingPeriod, err := time.ParseDuration(periodString)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error":           err,
			"reportingPeriod": periodString,
		}).Info("Failed to parse telemetry.reportingPeriod, defaulting to 1m")
		reportingPeriod = time.Minute
	}

	// Change the frequency of updates to the metrics endpoint
	view.SetReportingPeriod(reportingPeriod)

	logger.WithFields(logrus.Fields{
		"reportingPeriod": reportingPeriod,
	}).Info("telemetry has been configured.")
	return nil
}
