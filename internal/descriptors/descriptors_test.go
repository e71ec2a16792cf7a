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

package descriptors

import (
	"context"
	"sync"
	"testing"

	"automl.dev/advisor/internal/statestore"
	statestoreTesting "automl.dev/advisor/internal/statestore/testing"
	utilTesting "automl.dev/advisor/internal/util/testing"
	"automl.dev/advisor/pkg/types"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSource struct {
	mu    sync.Mutex
	calls map[string]int
	mfs   map[string]*types.Metafeatures
	err   error
}

func (f *fakeSource) GetMetafeatures(ctx context.Context, datasetID string) (*types.Metafeatures, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[datasetID]++
	if f.err != nil {
		return nil, f.err
	}
	mf, ok := f.mfs[datasetID]
	if !ok {
		return nil, status.Error(codes.NotFound, "no such dataset")
	}
	cp := *mf
	return &cp, nil
}

func TestResolveCachesOnce(t *testing.T) {
	ctx := utilTesting.NewContext(t)
	src := &fakeSource{mfs: map[string]*types.Metafeatures{
		"ds1": {Hash: "h1", ProblemType: types.Classification},
	}}
	r := New(statestoreTesting.NewStoreServiceForTesting(t, viper.New()), src)

	for i := 0; i < 3; i++ {
		mf, err := r.Resolve(ctx, "ds1")
		require.NoError(t, err)
		assert.Equal(t, "ds1", mf.DatasetID)
		assert.Equal(t, types.Classification, mf.ProblemType)
	}
	assert.Equal(t, 1, src.calls["ds1"])
}

func TestResolveErrors(t *testing.T) {
	ctx := utilTesting.NewContext(t)
	src := &fakeSource{mfs: map[string]*types.Metafeatures{
		"weird": {ProblemType: "clustering"},
	}}
	r := New(statestore.New(viper.New()), src)

	_, err := r.Resolve(ctx, "missing")
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = r.Resolve(ctx, "weird")
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	src.err = status.Error(codes.Unavailable, "lab down")
	_, err = r.Resolve(ctx, "ds1")
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

type racingCache struct {
	Cache
	winner *types.Metafeatures
}

func (c *racingCache) InsertMetafeatures(ctx context.Context, mf *types.Metafeatures) (bool, error) {
	c.Cache.InsertMetafeatures(ctx, c.winner)
	return c.Cache.InsertMetafeatures(ctx, mf)
}

func TestResolveKeepsFirstInsert(t *testing.T) {
	ctx := utilTesting.NewContext(t)
	winner := &types.Metafeatures{DatasetID: "ds1", Hash: "first", ProblemType: types.Regression}
	cache := &racingCache{Cache: statestore.New(viper.New()), winner: winner}
	src := &fakeSource{mfs: map[string]*types.Metafeatures{
		"ds1": {Hash: "second", ProblemType: types.Regression},
	}}

	mf, err := New(cache, src).Resolve(ctx, "ds1")
	require.NoError(t, err)
	assert.Equal(t, "first", mf.Hash)
}

func TestResolveAll(t *testing.T) {
	ctx := utilTesting.NewContext(t)
	src := &fakeSource{mfs: map[string]*types.Metafeatures{
		"ds1": {ProblemType: types.Classification},
		"ds2": {ProblemType: types.Regression},
	}}
	r := New(statestore.New(viper.New()), src)

	out, err := r.ResolveAll(ctx, []types.Result{
		{DatasetID: "ds1"}, {DatasetID: "ds2"}, {DatasetID: "ds1"}, {DatasetID: "gone"},
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, types.Regression, out["ds2"].ProblemType)
	assert.Equal(t, 1, src.calls["ds1"])
}
