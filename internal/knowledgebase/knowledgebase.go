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

// Package knowledgebase loads results of experiments run outside the lab and
// feeds them to the recommenders before the advisor starts serving.
package knowledgebase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"automl.dev/advisor/internal/recommender"
	"automl.dev/advisor/pkg/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "advisor",
		"component": "knowledgebase",
	})
)

// Entry is one prior experiment. Algorithms are named, not identified, since
// ids differ between lab installations.
type Entry struct {
	DatasetID   string             `json:"_id"`
	Algorithm   string             `json:"algorithm"`
	ProblemType types.ProblemType  `json:"prediction_type"`
	Parameters  types.Parameters   `json:"parameters"`
	Scores      map[string]float64 `json:"scores"`
}

// Knowledgebase holds prior results and the metafeatures of their datasets.
type Knowledgebase struct {
	Results      []Entry              `json:"results"`
	Metafeatures []types.Metafeatures `json:"metafeatures"`
}

// Load reads a knowledgebase file.
func Load(path string) (*Knowledgebase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open knowledgebase")
	}
	defer f.Close()

	kb := &Knowledgebase{}
	if err := json.NewDecoder(f).Decode(kb); err != nil {
		return nil, errors.Wrapf(err, "cannot parse knowledgebase %s", path)
	}
	for i, e := range kb.Results {
		if e.DatasetID == "" || e.Algorithm == "" {
			return nil, errors.Errorf("knowledgebase %s: result %d has no dataset or algorithm", path, i)
		}
		if !e.ProblemType.Valid() {
			return nil, errors.Errorf("knowledgebase %s: result %d has unknown problem type %q", path, i, e.ProblemType)
		}
	}
	return kb, nil
}

// Catalogue lists the algorithms of the lab.
type Catalogue interface {
	GetAlgorithms(ctx context.Context, pt types.ProblemType) ([]types.Algorithm, error)
}

// Bootstrap feeds the knowledgebase to oracles. Algorithm names are mapped to
// the ids of c; results of algorithms the lab does not have are dropped.
func (kb *Knowledgebase) Bootstrap(ctx context.Context, c Catalogue, oracles recommender.Set) error {
	mfs := make(map[string]*types.Metafeatures, len(kb.Metafeatures))
	for i := range kb.Metafeatures {
		mf := kb.Metafeatures[i]
		if mf.DatasetID == "" {
			mf.DatasetID = mf.Hash
		}
		mfs[mf.DatasetID] = &mf
	}

	for _, pt := range types.ProblemTypes {
		oracle, ok := oracles[pt]
		if !ok {
			continue
		}
		algs, err := c.GetAlgorithms(ctx, pt)
		if err != nil {
			return errors.Wrapf(err, "cannot read %s algorithms", pt)
		}
		ids := make(map[string]string, len(algs))
		for _, a := range algs {
			ids[a.Name] = a.ID
		}

		var results []types.Result
		unknown := map[string]int{}
		for i, e := range kb.Results {
			if e.ProblemType != pt {
				continue
			}
			id, ok := ids[e.Algorithm]
			if !ok {
				unknown[e.Algorithm]++
				continue
			}
			results = append(results, types.Result{
				ID:          fmt.Sprintf("kb-%d", i),
				DatasetID:   e.DatasetID,
				ProblemType: pt,
				AlgorithmID: id,
				Parameters:  e.Parameters,
				Scores:      e.Scores,
			})
		}
		warnUnknown(pt, unknown)

		if len(results) == 0 {
			continue
		}
		if err := oracle.Update(ctx, results, mfs); err != nil {
			return errors.Wrapf(err, "cannot bootstrap %s recommender", pt)
		}
		logger.WithFields(logrus.Fields{
			"problemType": pt,
			"results":     len(results),
		}).Info("knowledgebase loaded")
	}
	return nil
}

func warnUnknown(pt types.ProblemType, unknown map[string]int) {
	names := make([]string, 0, len(unknown))
	for n := range unknown {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		logger.WithFields(logrus.Fields{
			"problemType": pt,
			"algorithm":   n,
			"results":     unknown[n],
		}).Warn("knowledgebase results dropped, the lab has no such algorithm")
	}
}
