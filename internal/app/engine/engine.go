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

// Package engine runs the advisor's orchestration loop. Every tick it feeds
// new experiment results to the recommenders, picks up AI requests from the
// lab and advances the campaigns.
package engine

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"automl.dev/advisor/internal/recommender"
	"automl.dev/advisor/internal/telemetry"
	"automl.dev/advisor/pkg/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/tag"
	"go.opencensus.io/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "advisor",
		"component": "app.engine",
	})
)

// Lab is the part of the lab the loop polls.
type Lab interface {
	GetNewResults(ctx context.Context, since int64) ([]types.Result, error)
	GetRequestedDatasets(ctx context.Context) ([]types.Dataset, error)
	GetOffDatasets(ctx context.Context) ([]types.Dataset, error)
	SetDatasetAIStatus(ctx context.Context, datasetID string, s types.AIStatus) error
	SetRecommenderStatus(ctx context.Context, s types.RecommenderStatus) error
}

// Campaigns is the campaign manager.
type Campaigns interface {
	AddCampaign(ctx context.Context, datasetID, datasetName string) error
	TerminateCampaign(datasetID string) error
	AdvanceAll(ctx context.Context) error
	Shutdown()
}

// Descriptors resolves the metafeatures of the datasets results belong to.
type Descriptors interface {
	ResolveAll(ctx context.Context, results []types.Result) (map[string]*types.Metafeatures, error)
}

// Params configure an Engine.
type Params struct {
	Lab         Lab
	Campaigns   Campaigns
	Descriptors Descriptors
	Oracles     recommender.Set
	// TickInterval is the pause between the end of a tick and the start of
	// the next.
	TickInterval time.Duration
	// BeforeTick runs first in every tick. An error stops the loop.
	BeforeTick func(ctx context.Context) error
	// Watermark is the finish time, in milliseconds, of the newest result
	// already known to the recommenders.
	Watermark int64
}

// Engine is the orchestration loop.
type Engine struct {
	p         Params
	watermark atomic.Int64
	// atWatermark holds the ids of ingested results that finished exactly at
	// the watermark. Results finishing in that millisecond may still show up.
	atWatermark map[string]bool
}

// New returns an engine.
func New(p Params) *Engine {
	e := &Engine{p: p, atWatermark: map[string]bool{}}
	e.watermark.Store(p.Watermark)
	return e
}

// Watermark returns the finish time of the newest ingested result.
func (e *Engine) Watermark() int64 {
	return e.watermark.Load()
}

// Run ticks until ctx is done or a tick fails. The campaign manager is shut
// down and the lab told that recommendations are disabled before Run
// returns, whatever the reason.
func (e *Engine) Run(ctx context.Context) error {
	defer e.shutdown()

	if err := e.p.Lab.SetRecommenderStatus(ctx, types.RecommenderRunning); err != nil {
		logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("cannot report recommender status")
	}
	logger.WithFields(logrus.Fields{
		"tickInterval": e.p.TickInterval.String(),
	}).Info("orchestration loop started")

	for {
		if err := e.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.WithFields(logrus.Fields{
				"error": err.Error(),
			}).Error("orchestration loop failed")
			return err
		}

		t := time.NewTimer(e.p.TickInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Tick runs one iteration of the loop. Only failures that must stop the loop
// are returned; unreachable lab endpoints are logged and retried on the
// next tick.
func (e *Engine) Tick(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "advisor.engine/Tick")
	defer span.End()
	start := time.Now()
	defer func() {
		telemetry.RecordNUnitMeasurement(ctx, telemetry.TickLatency, time.Since(start).Milliseconds())
	}()

	if e.p.BeforeTick != nil {
		if err := e.p.BeforeTick(ctx); err != nil {
			return err
		}
	}

	// Recommendations made this tick must see the latest results.
	e.ingest(ctx)

	if err := e.pollRequested(ctx); err != nil {
		return err
	}
	e.pollOff(ctx)

	if err := e.p.Campaigns.AdvanceAll(ctx); err != nil {
		return errors.Wrap(err, "cannot advance campaigns")
	}
	return nil
}

func (e *Engine) ingest(ctx context.Context) {
	since := e.watermark.Load()
	query := since
	if query > 0 {
		// The lab excludes since itself.
		query--
	}
	polled, err := e.p.Lab.GetNewResults(ctx, query)
	if err != nil {
		pollFailed(ctx, "results", err)
		return
	}
	results := polled[:0]
	for _, r := range polled {
		if r.FinishedAt < since || (r.FinishedAt == since && (r.ID == "" || e.atWatermark[r.ID])) {
			continue
		}
		results = append(results, r)
	}
	if len(results) == 0 {
		return
	}

	mfs, err := e.p.Descriptors.ResolveAll(ctx, results)
	if err != nil {
		pollFailed(ctx, "metafeatures", err)
		return
	}

	groups := map[types.ProblemType][]types.Result{}
	newest := since
	for _, r := range results {
		if r.FinishedAt > newest {
			newest = r.FinishedAt
		}
		pt := r.ProblemType
		if pt == "" && mfs[r.DatasetID] != nil {
			pt = mfs[r.DatasetID].ProblemType
		}
		groups[pt] = append(groups[pt], r)
	}

	pts := make([]string, 0, len(groups))
	for pt := range groups {
		pts = append(pts, string(pt))
	}
	sort.Strings(pts)
	for _, name := range pts {
		pt := types.ProblemType(name)
		oracle, err := e.p.Oracles.For(pt)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"problemType": name,
				"results":     len(groups[pt]),
			}).Debug("results without a recommender ignored")
			continue
		}
		if err := oracle.Update(ctx, groups[pt], mfs); err != nil {
			// Oracles ignore results they already know, so the whole batch
			// is fed again next tick.
			logger.WithFields(logrus.Fields{
				"problemType": name,
				"error":       err.Error(),
			}).Warn("cannot update recommender")
			return
		}
		tctx, _ := tag.New(ctx, tag.Upsert(telemetry.KeyProblemType, name))
		telemetry.RecordNUnitMeasurement(tctx, telemetry.ResultsIngested, int64(len(groups[pt])))
	}

	if newest > since {
		e.atWatermark = map[string]bool{}
	}
	for _, r := range results {
		if r.FinishedAt == newest && r.ID != "" {
			e.atWatermark[r.ID] = true
		}
	}
	e.watermark.Store(newest)
	logger.WithFields(logrus.Fields{
		"results":   len(results),
		"watermark": newest,
	}).Debug("results ingested")
}

func (e *Engine) pollRequested(ctx context.Context) error {
	datasets, err := e.p.Lab.GetRequestedDatasets(ctx)
	if err != nil {
		pollFailed(ctx, "requested datasets", err)
		return nil
	}
	for _, d := range datasets {
		// The campaign exists before the request is acknowledged, so a
		// request is never left on without one.
		if err := e.p.Campaigns.AddCampaign(ctx, d.ID, d.Name); err != nil {
			if status.Code(err) == codes.Aborted {
				return errors.Wrapf(err, "cannot start campaign for dataset %s", d.ID)
			}
			// The dataset stays requested and is picked up again.
			logger.WithFields(logrus.Fields{
				"datasetId": d.ID,
				"error":     err.Error(),
			}).Warn("cannot start campaign")
			continue
		}
		if err := e.p.Lab.SetDatasetAIStatus(ctx, d.ID, types.AIOn); err != nil {
			// Adding the campaign again next tick is a no-op; submissions
			// wait until the status is on.
			logger.WithFields(logrus.Fields{
				"datasetId": d.ID,
				"error":     err.Error(),
			}).Warn("cannot acknowledge ai request")
		}
	}
	return nil
}

func (e *Engine) pollOff(ctx context.Context) {
	datasets, err := e.p.Lab.GetOffDatasets(ctx)
	if err != nil {
		pollFailed(ctx, "off datasets", err)
		return
	}
	for _, d := range datasets {
		if err := e.p.Campaigns.TerminateCampaign(d.ID); err != nil {
			logger.WithFields(logrus.Fields{
				"datasetId": d.ID,
				"error":     err.Error(),
			}).Warn("cannot terminate campaign")
		}
	}
}

func (e *Engine) shutdown() {
	e.p.Campaigns.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.p.Lab.SetRecommenderStatus(ctx, types.RecommenderDisabled); err != nil {
		logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("cannot report recommender status")
	}
	logger.Info("orchestration loop stopped")
}

func pollFailed(ctx context.Context, what string, err error) {
	if ctx.Err() != nil {
		return
	}
	telemetry.RecordUnitMeasurement(ctx, telemetry.PollFailures)
	logger.WithFields(logrus.Fields{
		"poll":  what,
		"error": err.Error(),
	}).Warn("lab poll failed, retrying next tick")
}
