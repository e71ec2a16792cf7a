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
	"go.opencensus.io/tag"
)

// Tag keys of the advisor metrics.
var (
	KeyEnd         = tag.MustNewKey("end")
	KeyOutcome     = tag.MustNewKey("outcome")
	KeyProblemType = tag.MustNewKey("problem_type")
)

// Campaign metrics
var (
	CampaignsCreated = Counter("advisor/campaigns_created", "campaigns created")
	CampaignsEnded   = Counter("advisor/campaigns_ended", "campaigns that left the active set", KeyEnd)
	ActiveCampaigns  = Gauge("advisor/active_campaigns", "Number of campaigns in the active set")
	Submissions      = Counter("advisor/submissions", "submission attempts", KeyOutcome)
	Recommendations  = Sum("advisor/recommendations", "recommendations produced by oracles", KeyProblemType)
)

// Loop metrics
var (
	ResultsIngested = Sum("advisor/results_ingested", "experiment results fed to oracles", KeyProblemType)
	TickLatency     = HistogramWithBounds("advisor/tick_latency", "Time elapsed of each orchestration tick", "ms", HistogramBounds)
	PollFailures    = Counter("advisor/poll_failures", "lab polls skipped because the lab could not be reached")
)

// Health metrics
var (
	ProbeReadiness = Counter("advisor/health/readiness", "readiness probes")
)
