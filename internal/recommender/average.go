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
	"sort"
	"sync"

	"automl.dev/advisor/pkg/types"
	"github.com/sirupsen/logrus"
)

type mean struct {
	sum float64
	n   int
}

func (m mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

// average ranks candidates by their mean score across every dataset.
// Candidates not yet tried for the dataset come first.
type average struct {
	mu         sync.Mutex
	metric     string
	candidates []types.Candidate
	scores     map[string]mean
	seen       map[string]bool
	tried      triedSet
}

func newAverage(cfg Config) (Oracle, error) {
	return &average{
		metric:     cfg.Metric,
		candidates: cfg.Candidates,
		scores:     map[string]mean{},
		seen:       map[string]bool{},
		tried:      triedSet{},
	}, nil
}

func (a *average) Recommend(ctx context.Context, datasetID string, count int, mf *types.Metafeatures) ([]types.Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	key := historyKey(datasetID, mf)
	type ranked struct {
		c     types.Candidate
		key   string
		tried bool
		score float64
	}
	all := make([]ranked, 0, len(a.candidates))
	for _, c := range a.candidates {
		k := c.Key()
		all = append(all, ranked{c: c, key: k, tried: a.tried.has(datasetID, mf, k), score: a.scores[k].value()})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].tried != all[j].tried {
			return !all[i].tried
		}
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].key < all[j].key
	})
	if count > len(all) {
		count = len(all)
	}

	recs := make([]types.Recommendation, 0, count)
	for _, r := range all[:count] {
		a.tried.add(key, r.key)
		recs = append(recs, types.Recommendation{
			DatasetID:   datasetID,
			AlgorithmID: r.c.AlgorithmID,
			Parameters:  r.c.Parameters,
			Score:       r.score,
		})
	}
	return recs, nil
}

func (a *average) Update(ctx context.Context, results []types.Result, mfs map[string]*types.Metafeatures) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range results {
		if r.ID != "" && a.seen[r.ID] {
			continue
		}
		score, ok := r.Scores[a.metric]
		if !ok {
			logger.WithFields(logrus.Fields{
				"resultId": r.ID,
				"metric":   a.metric,
			}).Debug("result has no score for metric, skipped")
			continue
		}
		if r.ID != "" {
			a.seen[r.ID] = true
		}
		k := types.Candidate{AlgorithmID: r.AlgorithmID, Parameters: r.Parameters}.Key()
		m := a.scores[k]
		m.sum += score
		m.n++
		a.scores[k] = m
	}
	a.tried.observe(results, mfs)
	return nil
}
