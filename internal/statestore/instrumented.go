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

package statestore

import (
	"context"
	"time"

	"automl.dev/advisor/internal/telemetry"
	"automl.dev/advisor/pkg/types"
	"go.opencensus.io/trace"
)

var (
	mStateStoreGetMetafeaturesCount    = telemetry.Counter("statestore/getmetafeaturescount", "metafeature lookups")
	mStateStoreInsertMetafeaturesCount = telemetry.Counter("statestore/insertmetafeaturescount", "metafeature inserts")
	mStateStoreRecordOutcomeCount      = telemetry.Counter("statestore/recordoutcomecount", "campaign outcomes recorded")
	mStateStoreListOutcomesCount       = telemetry.Counter("statestore/listoutcomescount", "campaign outcome listings")
)

// instrumentedService is a wrapper for a statestore service that provides instrumentation (metrics and tracing) of the database.
type instrumentedService struct {
	s Service
}

// Close the connection to the database.
func (is *instrumentedService) Close() error {
	return is.s.Close()
}

// HealthCheck indicates if the database is reachable.
func (is *instrumentedService) HealthCheck(ctx context.Context) error {
	return is.s.HealthCheck(ctx)
}

func (is *instrumentedService) GetMetafeatures(ctx context.Context, datasetID string) (*types.Metafeatures, error) {
	ctx, span := trace.StartSpan(ctx, "statestore/instrumented.GetMetafeatures")
	defer span.End()
	defer telemetry.RecordUnitMeasurement(ctx, mStateStoreGetMetafeaturesCount)
	return is.s.GetMetafeatures(ctx, datasetID)
}

func (is *instrumentedService) InsertMetafeatures(ctx context.Context, mf *types.Metafeatures) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "statestore/instrumented.InsertMetafeatures")
	defer span.End()
	defer telemetry.RecordUnitMeasurement(ctx, mStateStoreInsertMetafeaturesCount)
	return is.s.InsertMetafeatures(ctx, mf)
}

func (is *instrumentedService) RecordOutcome(ctx context.Context, o *types.CampaignOutcome) error {
	ctx, span := trace.StartSpan(ctx, "statestore/instrumented.RecordOutcome")
	defer span.End()
	defer telemetry.RecordUnitMeasurement(ctx, mStateStoreRecordOutcomeCount)
	return is.s.RecordOutcome(ctx, o)
}

func (is *instrumentedService) ListOutcomes(ctx context.Context, datasetID string) ([]*types.CampaignOutcome, error) {
	ctx, span := trace.StartSpan(ctx, "statestore/instrumented.ListOutcomes")
	defer span.End()
	defer telemetry.RecordUnitMeasurement(ctx, mStateStoreListOutcomesCount)
	return is.s.ListOutcomes(ctx, datasetID)
}

func (is *instrumentedService) NewLeaderLock(name string, expiry time.Duration) LeaderLock {
	return is.s.NewLeaderLock(name, expiry)
}
