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

package testing

import (
	"testing"

	utilTesting "automl.dev/advisor/internal/util/testing"
	"automl.dev/advisor/pkg/types"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeStatestore(t *testing.T) {
	cfg := viper.New()
	s := NewStoreServiceForTesting(t, cfg)
	ctx := utilTesting.NewContext(t)

	require.NoError(t, s.HealthCheck(ctx))
	inserted, err := s.InsertMetafeatures(ctx, &types.Metafeatures{DatasetID: "abc", ProblemType: types.Classification})
	require.NoError(t, err)
	assert.True(t, inserted)

	mf, err := s.GetMetafeatures(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, types.Classification, mf.ProblemType)
}
