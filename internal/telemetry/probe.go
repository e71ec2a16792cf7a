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
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
)

const (
	// HealthCheckEndpoint is the endpoint for Kubernetes health probes.
	// See: https://kubernetes.io/docs/tasks/configure-pod-container/configure-liveness-readiness-probes/
	HealthCheckEndpoint   = "/healthz"
	healthStateFirstProbe = int32(0)
	healthStateHealthy    = int32(1)
	healthStateUnhealthy  = int32(2)
)

type statefulProbe struct {
	healthState *int32
	probes      []func(context.Context) error
}

// ServeHTTP answers liveness probes with 200. Requests carrying a query
// string are readiness probes and run every registered probe.
func (sp *statefulProbe) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if len(req.URL.Query()) > 0 {
		RecordUnitMeasurement(req.Context(), ProbeReadiness)
		for _, probe := range sp.probes {
			err := probe(req.Context())
			if err != nil {
				old := atomic.SwapInt32(sp.healthState, healthStateUnhealthy)
				if old == healthStateUnhealthy {
					logger.WithError(err).Warningf("%s health check continues to fail. The server is at risk of termination.", HealthCheckEndpoint)
				} else {
					logger.WithError(err).Warningf("%s health check failed. The server will terminate if this continues to happen.", HealthCheckEndpoint)
				}
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}

		switch atomic.SwapInt32(sp.healthState, healthStateHealthy) {
		case healthStateUnhealthy:
			logger.Infof("%s is healthy again.", HealthCheckEndpoint)
		case healthStateFirstProbe:
			logger.Infof("%s is reporting healthy.", HealthCheckEndpoint)
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok")
}

// NewHealthCheck creates an HTTP handler for Kubernetes liveness and readiness checks.
func NewHealthCheck(probes []func(context.Context) error) http.Handler {
	return &statefulProbe{
		healthState: new(int32),
		probes:      probes,
	}
}
