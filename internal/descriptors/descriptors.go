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

// Package descriptors resolves dataset metafeatures through an append-only
// cache in front of the lab.
package descriptors

import (
	"context"
	"sort"

	"automl.dev/advisor/pkg/types"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "advisor",
		"component": "descriptors",
	})
)

// Cache is keyed lookup plus insert-if-absent. Entries are never replaced.
type Cache interface {
	GetMetafeatures(ctx context.Context, datasetID string) (*types.Metafeatures, error)
	InsertMetafeatures(ctx context.Context, mf *types.Metafeatures) (bool, error)
}

// Source computes or fetches metafeatures.
type Source interface {
	GetMetafeatures(ctx context.Context, datasetID string) (*types.Metafeatures, error)
}

// Resolver returns the metafeatures of datasets.
type Resolver struct {
	cache  Cache
	source Source
}

// New returns a resolver reading through cache to source.
func New(cache Cache, source Source) *Resolver {
	return &Resolver{cache: cache, source: source}
}

// Resolve returns the metafeatures of a dataset. Datasets without usable
// metafeatures fail with codes.FailedPrecondition. An unreachable cache or
// source fails with codes.Unavailable.
func (r *Resolver) Resolve(ctx context.Context, datasetID string) (*types.Metafeatures, error) {
	mf, err := r.cache.GetMetafeatures(ctx, datasetID)
	if err == nil {
		return mf, nil
	}
	if status.Code(err) != codes.NotFound {
		logger.WithFields(logrus.Fields{
			"datasetId": datasetID,
			"error":     err.Error(),
		}).Warn("metafeature cache lookup failed, asking the lab")
	}

	mf, err = r.source.GetMetafeatures(ctx, datasetID)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, status.Errorf(codes.FailedPrecondition, "dataset %s has no metafeatures", datasetID)
		}
		return nil, err
	}
	if mf.DatasetID == "" {
		mf.DatasetID = datasetID
	}
	if !mf.ProblemType.Valid() {
		return nil, status.Errorf(codes.FailedPrecondition, "dataset %s has unsupported problem type %q", datasetID, mf.ProblemType)
	}

	inserted, err := r.cache.InsertMetafeatures(ctx, mf)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"datasetId": datasetID,
			"error":     err.Error(),
		}).Warn("cannot cache metafeatures")
		return mf, nil
	}
	if !inserted {
		// Someone cached them first; theirs are canonical.
		if cached, err := r.cache.GetMetafeatures(ctx, datasetID); err == nil {
			return cached, nil
		}
	}
	return mf, nil
}

// ResolveAll resolves the metafeatures of every dataset referenced by
// results. Datasets that can not be resolved are left out; the first
// Unavailable error is returned along with what was resolved.
func (r *Resolver) ResolveAll(ctx context.Context, results []types.Result) (map[string]*types.Metafeatures, error) {
	ids := map[string]bool{}
	for _, res := range results {
		ids[res.DatasetID] = true
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	out := make(map[string]*types.Metafeatures, len(sorted))
	var unavailable error
	for _, id := range sorted {
		mf, err := r.Resolve(ctx, id)
		if err != nil {
			if status.Code(err) == codes.Unavailable && unavailable == nil {
				unavailable = err
			}
			logger.WithFields(logrus.Fields{
				"datasetId": id,
				"error":     err.Error(),
			}).Debug("results of dataset ingested without metafeatures")
			continue
		}
		out[id] = mf
	}
	return out, unavailable
}
