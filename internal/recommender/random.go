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

package recommender

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"automl.dev/advisor/pkg/types"
)

// random recommends candidates uniformly at random, preferring those not yet
// tried or recommended for the dataset.
type random struct {
	mu         sync.Mutex
	rng        *rand.Rand
	candidates []types.Candidate
	tried      triedSet
}

func newRandom(cfg Config) (Oracle, error) {
	return &random{
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		candidates: cfg.Candidates,
		tried:      triedSet{},
	}, nil
}

func (r *random) Recommend(ctx context.Context, datasetID string, count int, mf *types.Metafeatures) ([]types.Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := historyKey(datasetID, mf)
	pool := make([]types.Candidate, 0, len(r.candidates))
	for _, c := range r.candidates {
		if !r.tried.has(datasetID, mf, c.Key()) {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		pool = append(pool, r.candidates...)
	}
	r.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if count > len(pool) {
		count = len(pool)
	}

	recs := make([]types.Recommendation, 0, count)
	for _, c := range pool[:count] {
		r.tried.add(key, c.Key())
		recs = append(recs, types.Recommendation{
			DatasetID:   datasetID,
			AlgorithmID: c.AlgorithmID,
			Parameters:  c.Parameters,
			Score:       r.rng.Float64(),
		})
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	return recs, nil
}

func (r *random) Update(ctx context.Context, results []types.Result, mfs map[string]*types.Metafeatures) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tried.observe(results, mfs)
	return nil
}
