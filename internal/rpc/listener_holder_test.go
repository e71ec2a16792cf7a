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

package rpc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenerHolderObtainOnce(t *testing.T) {
	lh := MustListen()
	defer lh.Close()
	assert.NotZero(t, lh.Number())
	assert.NotEmpty(t, lh.AddrString())

	l, err := lh.Obtain()
	require.NoError(t, err)
	defer l.Close()

	_, err = lh.Obtain()
	assert.Error(t, err)
	assert.NoError(t, lh.Close())
}

func TestNewListenerHolderError(t *testing.T) {
	failing := func(string, string) (net.Listener, error) {
		return nil, &net.OpError{Op: "listen"}
	}
	_, err := NewListenerHolder(8080, failing)
	assert.Error(t, err)
}
