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

package statestore

import (
	"context"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/redigo"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const leaderLockPrefix = "leader:"

type redisLeaderLock struct {
	name  string
	mutex *redsync.Mutex
}

// NewLeaderLock returns a redsync mutex over the backend's pool.
func (rb *redisBackend) NewLeaderLock(name string, expiry time.Duration) LeaderLock {
	rs := redsync.New(redigo.NewPool(rb.redisPool))
	return &redisLeaderLock{
		name: name,
		mutex: rs.NewMutex(leaderLockPrefix+name,
			redsync.WithExpiry(expiry),
			redsync.WithTries(1),
		),
	}
}

func (l *redisLeaderLock) Acquire(ctx context.Context) error {
	if err := l.mutex.LockContext(ctx); err != nil {
		if err == redsync.ErrFailed {
			return status.Errorf(codes.Aborted, "leader lock %s is held by another advisor", l.name)
		}
		return status.Errorf(codes.Unavailable, "cannot acquire leader lock %s: %v", l.name, err)
	}
	redisLogger.WithFields(logrus.Fields{
		"lock":  l.name,
		"until": l.mutex.Until(),
	}).Info("leader lock acquired")
	return nil
}

func (l *redisLeaderLock) Extend(ctx context.Context) error {
	ok, err := l.mutex.ExtendContext(ctx)
	if err != nil || !ok {
		return status.Errorf(codes.Aborted, "leader lock %s lost: %v", l.name, err)
	}
	return nil
}

func (l *redisLeaderLock) Release(ctx context.Context) error {
	ok, err := l.mutex.UnlockContext(ctx)
	if err != nil {
		return status.Errorf(codes.Unavailable, "cannot release leader lock %s: %v", l.name, err)
	}
	if !ok {
		redisLogger.WithField("lock", l.name).Warn("leader lock had already expired")
	}
	return nil
}
