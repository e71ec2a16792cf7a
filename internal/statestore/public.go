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

	"automl.dev/advisor/internal/config"
	"automl.dev/advisor/internal/telemetry"
	"automl.dev/advisor/pkg/types"
)

// Service is a generic interface for talking to a storage backend.
type Service interface {
	// HealthCheck indicates if the database is reachable.
	HealthCheck(ctx context.Context) error

	// GetMetafeatures returns the metafeatures cached for the dataset. It
	// fails with codes.NotFound if there are none.
	GetMetafeatures(ctx context.Context, datasetID string) (*types.Metafeatures, error)

	// InsertMetafeatures caches the metafeatures of mf.DatasetID unless some
	// are cached already. Cached entries are never replaced nor evicted. It
	// reports whether mf was stored.
	InsertMetafeatures(ctx context.Context, mf *types.Metafeatures) (bool, error)

	// RecordOutcome appends the outcome to the history of its dataset.
	RecordOutcome(ctx context.Context, o *types.CampaignOutcome) error

	// ListOutcomes returns the recorded outcomes of a dataset, oldest first.
	ListOutcomes(ctx context.Context, datasetID string) ([]*types.CampaignOutcome, error)

	// NewLeaderLock returns a lock named name held for expiry unless extended.
	NewLeaderLock(name string, expiry time.Duration) LeaderLock

	// Closes the connection to the underlying storage.
	Close() error
}

// LeaderLock makes sure a single advisor drives the campaigns.
type LeaderLock interface {
	// Acquire takes the lock. It fails with codes.Aborted if another holder
	// has it.
	Acquire(ctx context.Context) error
	// Extend resets the expiry of a held lock. It fails with codes.Aborted if
	// the lock was lost.
	Extend(ctx context.Context) error
	// Release gives the lock up.
	Release(ctx context.Context) error
}

// New creates a Service based on the configuration. Without a configured
// Redis host the service keeps everything in memory.
func New(cfg config.View) Service {
	var s Service
	if cfg.GetString("redis.hostname") == "" {
		s = newMemory(cfg)
	} else {
		s = newRedis(cfg)
	}
	if cfg.GetBool(telemetry.ConfigNameEnableMetrics) {
		return &instrumentedService{
			s: s,
		}
	}
	return s
}
