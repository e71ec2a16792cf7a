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
	"sync"
	"time"

	"automl.dev/advisor/internal/config"
	"automl.dev/advisor/pkg/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// memoryBackend keeps state in the process. It serves single instance
// deployments that run without Redis.
type memoryBackend struct {
	mu           sync.RWMutex
	metafeatures map[string]*types.Metafeatures
	outcomes     map[string][]*types.CampaignOutcome
	maxOutcomes  int
}

func newMemory(cfg config.View) *memoryBackend {
	return &memoryBackend{
		metafeatures: map[string]*types.Metafeatures{},
		outcomes:     map[string][]*types.CampaignOutcome{},
		maxOutcomes:  cfg.GetInt("redis.outcomes.max"),
	}
}

func (mb *memoryBackend) HealthCheck(ctx context.Context) error {
	return nil
}

func (mb *memoryBackend) GetMetafeatures(ctx context.Context, datasetID string) (*types.Metafeatures, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	mf, ok := mb.metafeatures[datasetID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "metafeatures of dataset %s not found", datasetID)
	}
	cp := *mf
	return &cp, nil
}

func (mb *memoryBackend) InsertMetafeatures(ctx context.Context, mf *types.Metafeatures) (bool, error) {
	if mf == nil || mf.DatasetID == "" {
		return false, status.Error(codes.InvalidArgument, "metafeatures without dataset id")
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if _, ok := mb.metafeatures[mf.DatasetID]; ok {
		return false, nil
	}
	cp := *mf
	mb.metafeatures[mf.DatasetID] = &cp
	return true, nil
}

func (mb *memoryBackend) RecordOutcome(ctx context.Context, o *types.CampaignOutcome) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	cp := *o
	list := append(mb.outcomes[o.DatasetID], &cp)
	if mb.maxOutcomes > 0 && len(list) > mb.maxOutcomes {
		list = list[len(list)-mb.maxOutcomes:]
	}
	mb.outcomes[o.DatasetID] = list
	return nil
}

func (mb *memoryBackend) ListOutcomes(ctx context.Context, datasetID string) ([]*types.CampaignOutcome, error) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return append([]*types.CampaignOutcome(nil), mb.outcomes[datasetID]...), nil
}

// NewLeaderLock returns a lock that always succeeds; a process is alone with
// its memory.
func (mb *memoryBackend) NewLeaderLock(name string, expiry time.Duration) LeaderLock {
	return localLock{}
}

func (mb *memoryBackend) Close() error {
	return nil
}

type localLock struct{}

func (localLock) Acquire(context.Context) error { return nil }
func (localLock) Extend(context.Context) error  { return nil }
func (localLock) Release(context.Context) error { return nil }
