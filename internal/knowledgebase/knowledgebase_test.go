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

package knowledgebase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"automl.dev/advisor/internal/recommender"
	utilTesting "automl.dev/advisor/internal/util/testing"
	"automl.dev/advisor/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kbJSON = `{
  "results": [
    {"_id": "d1", "algorithm": "LogisticRegression", "prediction_type": "classification",
     "parameters": {"C": 1.0}, "scores": {"accuracy": 0.8}},
    {"_id": "d1", "algorithm": "XGBClassifier", "prediction_type": "classification",
     "parameters": {}, "scores": {"accuracy": 0.9}},
    {"_id": "d2", "algorithm": "LinearRegression", "prediction_type": "regression",
     "parameters": {}, "scores": {"r2_cv_mean": 0.5}}
  ],
  "metafeatures": [
    {"_id": "d1", "_prediction_type": "classification", "features": {"n_rows": 150}}
  ]
}`

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "kb.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type fakeCatalogue map[types.ProblemType][]types.Algorithm

func (c fakeCatalogue) GetAlgorithms(ctx context.Context, pt types.ProblemType) ([]types.Algorithm, error) {
	return c[pt], nil
}

type recordingOracle struct {
	results []types.Result
	mfs     map[string]*types.Metafeatures
}

func (o *recordingOracle) Recommend(ctx context.Context, datasetID string, count int, mf *types.Metafeatures) ([]types.Recommendation, error) {
	return nil, nil
}

func (o *recordingOracle) Update(ctx context.Context, results []types.Result, mfs map[string]*types.Metafeatures) error {
	o.results = append(o.results, results...)
	o.mfs = mfs
	return nil
}

func TestLoad(t *testing.T) {
	kb, err := Load(writeFile(t, kbJSON))
	require.NoError(t, err)
	assert.Len(t, kb.Results, 3)
	require.Len(t, kb.Metafeatures, 1)
	assert.Equal(t, "d1", kb.Metafeatures[0].Hash)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, `{"results": [`))
	assert.Error(t, err)

	_, err = Load(writeFile(t, `{"results": [{"_id": "d1", "algorithm": "x", "prediction_type": "clustering"}]}`))
	assert.Error(t, err)
}

func TestBootstrapMapsNamesAndDropsUnknownAlgorithms(t *testing.T) {
	ctx := utilTesting.NewContext(t)
	kb, err := Load(writeFile(t, kbJSON))
	require.NoError(t, err)

	classification := &recordingOracle{}
	c := fakeCatalogue{
		types.Classification: {{ID: "a1", Name: "LogisticRegression"}},
		types.Regression:     {{ID: "a2", Name: "LinearRegression"}},
	}
	require.NoError(t, kb.Bootstrap(ctx, c, recommender.Set{types.Classification: classification}))

	require.Len(t, classification.results, 1)
	r := classification.results[0]
	assert.Equal(t, "a1", r.AlgorithmID)
	assert.Equal(t, "d1", r.DatasetID)
	assert.Equal(t, types.Classification, r.ProblemType)
	assert.Equal(t, 0.8, r.Scores["accuracy"])
	assert.NotEmpty(t, r.ID)
	require.Contains(t, classification.mfs, "d1")
	assert.Equal(t, 150.0, classification.mfs["d1"].Features["n_rows"])
}

func TestBootstrapTeachesRecommender(t *testing.T) {
	ctx := utilTesting.NewContext(t)
	kb, err := Load(writeFile(t, kbJSON))
	require.NoError(t, err)

	algs := []types.Algorithm{
		{ID: "a1", Name: "LogisticRegression", Grid: []types.Parameters{{"C": 1.0}}},
		{ID: "a3", Name: "XGBClassifier"},
	}
	o, err := recommender.New("average", recommender.Config{ProblemType: types.Classification, Candidates: types.Candidates(algs)})
	require.NoError(t, err)
	c := fakeCatalogue{types.Classification: algs}
	require.NoError(t, kb.Bootstrap(ctx, c, recommender.Set{types.Classification: o}))

	recs, err := o.Recommend(ctx, "fresh", 2, &types.Metafeatures{DatasetID: "fresh"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a3", recs[0].AlgorithmID)
	assert.InDelta(t, 0.9, recs[0].Score, 1e-9)
}
