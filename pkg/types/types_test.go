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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParametersKeyIsOrderIndependent(t *testing.T) {
	a := Parameters{"max_depth": 3, "criterion": "gini"}
	b := Parameters{"criterion": "gini", "max_depth": 3}
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, `{"criterion":"gini","max_depth":3}`, a.Key())
	assert.Equal(t, "{}", Parameters(nil).Key())
}

func TestCandidates(t *testing.T) {
	algs := []Algorithm{
		{ID: "dt", Grid: []Parameters{{"max_depth": 1}, {"max_depth": 2}}},
		{ID: "nb"},
	}
	got := Candidates(algs)
	assert.Len(t, got, 3)
	assert.Equal(t, "dt", got[0].AlgorithmID)
	assert.Equal(t, "nb", got[2].AlgorithmID)
	assert.NotEqual(t, got[0].Key(), got[1].Key())
}

func TestProblemTypeValid(t *testing.T) {
	assert.True(t, Classification.Valid())
	assert.True(t, Regression.Valid())
	assert.False(t, ProblemType("clustering").Valid())
}

func TestMetafeaturesKey(t *testing.T) {
	assert.Equal(t, "h", (&Metafeatures{DatasetID: "d", Hash: "h"}).Key())
	assert.Equal(t, "d", (&Metafeatures{DatasetID: "d"}).Key())
}
