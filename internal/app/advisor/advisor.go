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

// Package advisor binds the recommendation advisor to the application
// server.
package advisor

import (
	"context"
	"time"

	"automl.dev/advisor/internal/app/engine"
	"automl.dev/advisor/internal/app/manager"
	"automl.dev/advisor/internal/appmain"
	"automl.dev/advisor/internal/campaign"
	"automl.dev/advisor/internal/config"
	"automl.dev/advisor/internal/consts"
	"automl.dev/advisor/internal/descriptors"
	"automl.dev/advisor/internal/knowledgebase"
	"automl.dev/advisor/internal/lab"
	"automl.dev/advisor/internal/recommender"
	"automl.dev/advisor/internal/statestore"
	"automl.dev/advisor/pkg/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "advisor",
		"component": "app.advisor",
	})
)

const (
	startupTimeout = 30 * time.Second
	leaderLockName = "advisor"
)

// Catalogue provides what the advisor needs from the lab at startup.
type Catalogue interface {
	GetAlgorithms(ctx context.Context, pt types.ProblemType) ([]types.Algorithm, error)
	SetRecommenderStatus(ctx context.Context, s types.RecommenderStatus) error
}

// BindService creates the advisor and binds it to the serving harness.
func BindService(p *appmain.Params, b *appmain.Bindings) error {
	cfg := p.Config()

	labClient, err := lab.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	store := statestore.New(cfg)
	b.AddCloserErr(store.Close)
	b.AddHealthCheckFunc(store.HealthCheck)
	b.AddHealthCheckFunc(labClient.HealthCheck)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	oracles, err := NewOracles(ctx, cfg, labClient)
	if err != nil {
		return err
	}

	var kb *knowledgebase.Knowledgebase
	if path := cfg.GetString(consts.AdvisorKnowledgebase); path != "" {
		if kb, err = knowledgebase.Load(path); err != nil {
			return err
		}
	}

	policy := config.NewCacher(cfg, campaign.PolicyFromConfig)
	if _, err := policy.Get(); err != nil {
		return errors.Wrap(err, "invalid termination policy")
	}

	resolver := descriptors.New(store, labClient)
	m := manager.New(manager.Params{
		Lab:         labClient,
		Descriptors: resolver,
		Oracles:     oracles,
		Outcomes:    store,
		Policy:      policy.Get,
		User:        cfg.GetString(consts.AdvisorUser),
		Parallelism: cfg.GetInt(consts.AdvisorParallelism),
	})
	b.HandleFunc("/campaigns", campaignsHandler(m))
	b.HandleFunc("/outcomes", outcomesHandler(store))

	var lock statestore.LeaderLock
	var beforeTick func(context.Context) error
	if cfg.GetBool(consts.RedisLeaderLockEnable) {
		lock = store.NewLeaderLock(leaderLockName, cfg.GetDuration(consts.RedisLeaderLockExpiry))
		beforeTick = lock.Extend
	}

	e := engine.New(engine.Params{
		Lab:          labClient,
		Campaigns:    m,
		Descriptors:  resolver,
		Oracles:      oracles,
		TickInterval: cfg.GetDuration(consts.AdvisorTickInterval),
		BeforeTick:   beforeTick,
	})
	b.Background(func(ctx context.Context) error {
		if lock != nil {
			if err := waitForLeadership(ctx, lock, cfg.GetDuration(consts.AdvisorTickInterval)); err != nil {
				// Stopped while on standby; the leader owns the lab status.
				return nil
			}
			defer func() {
				rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := lock.Release(rctx); err != nil {
					logger.WithFields(logrus.Fields{
						"error": err.Error(),
					}).Warn("cannot release leadership")
				}
			}()
		}
		if err := initialize(ctx, labClient, oracles, kb); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		return e.Run(ctx)
	})
	return nil
}

// initialize reports the advisor as initializing and feeds the knowledgebase,
// if any, to the oracles.
func initialize(ctx context.Context, c Catalogue, oracles recommender.Set, kb *knowledgebase.Knowledgebase) error {
	if err := c.SetRecommenderStatus(ctx, types.RecommenderInitializing); err != nil {
		logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("cannot report recommender status")
	}
	if kb == nil {
		return nil
	}
	if err := kb.Bootstrap(ctx, c, oracles); err != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := c.SetRecommenderStatus(sctx, types.RecommenderDisabled); serr != nil {
			logger.WithFields(logrus.Fields{
				"error": serr.Error(),
			}).Warn("cannot report recommender status")
		}
		return err
	}
	return nil
}

// NewOracles builds one oracle per problem type from the lab's algorithm
// catalogue. Problem types without algorithms get no oracle; an empty
// catalogue is an error.
func NewOracles(ctx context.Context, cfg config.View, c knowledgebase.Catalogue) (recommender.Set, error) {
	name := cfg.GetString(consts.AdvisorRecommender)
	oracles := recommender.Set{}
	for _, pt := range types.ProblemTypes {
		algs, err := c.GetAlgorithms(ctx, pt)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read %s algorithms", pt)
		}
		candidates := types.Candidates(algs)
		if len(candidates) == 0 {
			logger.WithFields(logrus.Fields{
				"problemType": pt,
			}).Warn("no algorithms, datasets of this problem type get no recommendations")
			continue
		}
		o, err := recommender.New(name, recommender.Config{
			ProblemType: pt,
			Candidates:  candidates,
			Seed:        cfg.GetInt64(consts.AdvisorRandomSeed),
		})
		if err != nil {
			return nil, err
		}
		oracles[pt] = o
	}
	if len(oracles) == 0 {
		return nil, status.Error(codes.FailedPrecondition, "the lab has no algorithms")
	}
	return oracles, nil
}

// waitForLeadership blocks until lock is acquired or ctx is done, in which
// case it returns ctx's error. Another advisor holding the lock keeps this
// one on standby.
func waitForLeadership(ctx context.Context, lock statestore.LeaderLock, every time.Duration) error {
	if every <= 0 {
		every = time.Second
	}
	standby := false
	for {
		err := lock.Acquire(ctx)
		if err == nil {
			logger.Info("leadership acquired")
			return nil
		}
		if !standby {
			standby = true
			logger.WithFields(logrus.Fields{
				"error": err.Error(),
			}).Info("another advisor is leading, standing by")
		}

		t := time.NewTimer(every)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
