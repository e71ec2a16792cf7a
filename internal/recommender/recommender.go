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

// Package recommender defines the recommendation oracles the advisor asks for
// ranked (algorithm, parameters) suggestions, and the built-in ones.
package recommender

import (
	"context"
	"sort"

	"automl.dev/advisor/pkg/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "advisor",
		"component": "recommender",
	})
)

// Oracle ranks candidates for a dataset and learns from finished
// experiments. An oracle serves one problem type.
type Oracle interface {
	// Recommend returns up to count recommendations for the dataset, best
	// first.
	Recommend(ctx context.Context, datasetID string, count int, mf *types.Metafeatures) ([]types.Recommendation, error)
	// Update feeds finished experiments. mfs is keyed by dataset id and holds
	// the metafeatures of every dataset referenced by results that has them.
	Update(ctx context.Context, results []types.Result, mfs map[string]*types.Metafeatures) error
}

// Set holds one oracle per problem type.
type Set map[types.ProblemType]Oracle

// For returns the oracle serving pt.
func (s Set) For(pt types.ProblemType) (Oracle, error) {
	o, ok := s[pt]
	if !ok {
		return nil, status.Errorf(codes.FailedPrecondition, "no recommender for problem type %q", pt)
	}
	return o, nil
}

// Config parameterizes a built-in oracle.
type Config struct {
	ProblemType types.ProblemType
	// Metric is the score results are ranked by.
	Metric     string
	Candidates []types.Candidate
	Seed       int64
}

// Factory builds an oracle.
type Factory func(Config) (Oracle, error)

var factories = map[string]Factory{
	"random":  newRandom,
	"average": newAverage,
}

// Names lists the built-in oracles.
func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultMetric is the score oracles optimize for pt.
func DefaultMetric(pt types.ProblemType) string {
	if pt == types.Regression {
		return "r2_cv_mean"
	}
	return "accuracy"
}

// New builds the built-in oracle called name.
func New(name string, cfg Config) (Oracle, error) {
	f, ok := factories[name]
	if !ok {
		return nil, errors.Errorf("unknown recommender %q (should be one of -- %v)", name, Names())
	}
	if len(cfg.Candidates) == 0 {
		return nil, status.Errorf(codes.FailedPrecondition, "no algorithms available for problem type %q", cfg.ProblemType)
	}
	if cfg.Metric == "" {
		cfg.Metric = DefaultMetric(cfg.ProblemType)
	}
	o, err := f(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build %s recommender for %s", name, cfg.ProblemType)
	}
	logger.WithFields(logrus.Fields{
		"recommender": name,
		"problemType": cfg.ProblemType,
		"metric":      cfg.Metric,
		"candidates":  len(cfg.Candidates),
	}).Info("recommender initialized")
	return o, nil
}

// historyKey is the identifier tried candidates are tracked under. Results
// whose metafeatures were not known at update time are tracked under the
// dataset id instead, so both are looked up.
func historyKey(datasetID string, mf *types.Metafeatures) string {
	if mf != nil {
		return mf.Key()
	}
	return datasetID
}

type triedSet map[string]map[string]bool

func (t triedSet) add(key, candidate string) {
	m, ok := t[key]
	if !ok {
		m = map[string]bool{}
		t[key] = m
	}
	m[candidate] = true
}

func (t triedSet) has(datasetID string, mf *types.Metafeatures, candidate string) bool {
	return t[historyKey(datasetID, mf)][candidate] || t[datasetID][candidate]
}

func (t triedSet) observe(results []types.Result, mfs map[string]*types.Metafeatures) {
	for _, r := range results {
		c := types.Candidate{AlgorithmID: r.AlgorithmID, Parameters: r.Parameters}
		t.add(historyKey(r.DatasetID, mfs[r.DatasetID]), c.Key())
	}
}
