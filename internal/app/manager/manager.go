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

// Package manager owns the active recommendation campaigns. It creates them,
// advances each of them through the campaign state machine once per tick and
// removes them when they end.
package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"automl.dev/advisor/internal/campaign"
	"automl.dev/advisor/internal/recommender"
	"automl.dev/advisor/internal/telemetry"
	"automl.dev/advisor/pkg/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/tag"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "advisor",
		"component": "app.manager",
	})

	// ErrShutdown is returned by operations invoked after Shutdown.
	ErrShutdown = status.Error(codes.Aborted, "campaign manager is shut down")
)

// Lab is the part of the lab the manager talks to.
type Lab interface {
	GetDatasetAIStatus(ctx context.Context, datasetID string) (types.AIStatus, error)
	SetDatasetAIStatus(ctx context.Context, datasetID string, s types.AIStatus) error
	SubmitRecommendation(ctx context.Context, s types.Submission) (types.SubmitOutcome, error)
}

// Descriptors resolves dataset metafeatures.
type Descriptors interface {
	Resolve(ctx context.Context, datasetID string) (*types.Metafeatures, error)
}

// OutcomeRecorder keeps the history of ended campaigns.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, o *types.CampaignOutcome) error
}

// Params configure a Manager.
type Params struct {
	Lab         Lab
	Descriptors Descriptors
	Oracles     recommender.Set
	// Outcomes is optional.
	Outcomes OutcomeRecorder
	// Policy returns the termination policy of new campaigns.
	Policy func() (campaign.Policy, error)
	// User is the lab user submissions are made for.
	User string
	// Parallelism bounds how many campaigns advance at the same time.
	Parallelism int
	Now         func() time.Time
}

type entry struct {
	c   campaign.Campaign
	off bool
}

// Manager holds at most one active campaign per dataset.
type Manager struct {
	p Params

	// advancing serializes AdvanceAll so a campaign never has two steps in
	// flight.
	advancing sync.Mutex

	mu       sync.Mutex
	entries  map[string]*entry
	shutdown bool
}

// New returns an empty manager.
func New(p Params) *Manager {
	if p.Parallelism < 1 {
		p.Parallelism = 1
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Manager{
		p:       p,
		entries: map[string]*entry{},
	}
}

// AddCampaign starts a campaign for the dataset. It does nothing if the
// dataset already has a running campaign. A campaign that was asked to stop
// but has not been advanced since is replaced by a fresh one.
func (m *Manager) AddCampaign(ctx context.Context, datasetID, datasetName string) error {
	policy, err := m.p.Policy()
	if err != nil {
		return errors.Wrap(err, "cannot read termination policy")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return ErrShutdown
	}
	if e, ok := m.entries[datasetID]; ok && !e.off {
		return nil
	}
	c := campaign.New(datasetID, datasetName, policy, m.p.Now())
	m.entries[datasetID] = &entry{c: c}

	logger.WithFields(logrus.Fields{
		"datasetId":  datasetID,
		"campaignId": c.ID,
		"policy":     c.Policy.String(),
	}).Info("campaign created")
	telemetry.RecordUnitMeasurement(ctx, telemetry.CampaignsCreated)
	telemetry.SetGauge(ctx, telemetry.ActiveCampaigns, int64(len(m.entries)))
	return nil
}

// TerminateCampaign asks the dataset's campaign to stop. The campaign ends
// on the next AdvanceAll whatever its state. Unknown datasets are ignored.
func (m *Manager) TerminateCampaign(datasetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return ErrShutdown
	}
	if e, ok := m.entries[datasetID]; ok && !e.off {
		e.off = true
		logger.WithFields(logrus.Fields{
			"datasetId":  datasetID,
			"campaignId": e.c.ID,
		}).Info("campaign termination requested")
	}
	return nil
}

// Campaigns returns a snapshot of the active campaigns ordered by dataset.
func (m *Manager) Campaigns() []campaign.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]campaign.Campaign, 0, len(m.entries))
	for _, e := range m.entries {
		c := e.c
		c.PendingBatch = append([]types.Recommendation(nil), e.c.PendingBatch...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DatasetID < out[j].DatasetID })
	return out
}

// AdvanceAll gives every active campaign one step. Campaigns of different
// datasets advance concurrently. Failures of one campaign never affect the
// others. Campaigns that end are removed from the active set.
func (m *Manager) AdvanceAll(ctx context.Context) error {
	m.advancing.Lock()
	defer m.advancing.Unlock()

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return ErrShutdown
	}
	work := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		work = append(work, e)
	}
	m.mu.Unlock()
	sort.Slice(work, func(i, j int) bool { return work[i].c.DatasetID < work[j].c.DatasetID })

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.p.Parallelism)
	for _, e := range work {
		e := e
		g.Go(func() error {
			m.advance(gctx, e)
			return nil
		})
	}
	g.Wait()

	m.mu.Lock()
	telemetry.SetGauge(ctx, telemetry.ActiveCampaigns, int64(len(m.entries)))
	m.mu.Unlock()
	return ctx.Err()
}

// Shutdown abandons the active campaigns. It is safe to call more than once.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	abandoned := len(m.entries)
	m.mu.Unlock()

	// Wait for a running AdvanceAll.
	m.advancing.Lock()
	m.mu.Lock()
	m.entries = map[string]*entry{}
	m.mu.Unlock()
	m.advancing.Unlock()

	logger.WithFields(logrus.Fields{
		"abandoned": abandoned,
	}).Info("campaign manager shut down")
}

// advance runs e's campaign until it has to wait for the next tick or ends.
func (m *Manager) advance(ctx context.Context, e *entry) {
	m.mu.Lock()
	c, off := e.c, e.off
	m.mu.Unlock()

	var ev campaign.Event = campaign.Tick{}
	if off {
		ev = campaign.OffRequested{}
	}
	for {
		next, eff := campaign.Step(c, ev, m.p.Now())
		if _, ok := eff.(campaign.Finish); ok {
			m.finish(ctx, e, next)
			return
		}
		if _, ok := eff.(campaign.Wait); ok {
			m.store(e, next)
			return
		}
		if ctx.Err() != nil {
			// The effect is performed on the next tick.
			m.store(e, next)
			return
		}

		ev = m.perform(ctx, next, eff)
		if ev == nil || ctx.Err() != nil {
			m.store(e, next)
			return
		}
		c = next

		m.mu.Lock()
		off = e.off
		m.mu.Unlock()
		if off {
			// The result of the effect is dropped.
			ev = campaign.OffRequested{}
		}
	}
}

// perform carries out eff and returns the event it produced, or nil when the
// campaign must wait for the next tick without changing state.
func (m *Manager) perform(ctx context.Context, c campaign.Campaign, eff campaign.Effect) campaign.Event {
	switch eff := eff.(type) {
	case campaign.Recommend:
		return m.recommend(ctx, c, eff)
	case campaign.Submit:
		return campaign.Submitted{Outcome: m.submit(ctx, c, eff.Item)}
	}
	return nil
}

func (m *Manager) recommend(ctx context.Context, c campaign.Campaign, eff campaign.Recommend) campaign.Event {
	fields := logrus.Fields{
		"datasetId":  c.DatasetID,
		"campaignId": c.ID,
	}
	mf, err := m.p.Descriptors.Resolve(ctx, eff.DatasetID)
	if err != nil {
		if status.Code(err) == codes.Unavailable {
			fields["error"] = err.Error()
			logger.WithFields(fields).Warn("metafeatures unavailable, recommendation deferred")
			return nil
		}
		return campaign.BatchFailed{Err: err}
	}
	pt := eff.ProblemType
	if pt == "" {
		pt = mf.ProblemType
	}
	oracle, err := m.p.Oracles.For(pt)
	if err != nil {
		return campaign.BatchFailed{Err: err}
	}
	items, err := oracle.Recommend(ctx, eff.DatasetID, eff.Count, mf)
	if err != nil {
		return campaign.BatchFailed{Err: errors.Wrap(err, "recommender failed")}
	}
	ctx, _ = tag.New(ctx, tag.Upsert(telemetry.KeyProblemType, string(pt)))
	telemetry.RecordNUnitMeasurement(ctx, telemetry.Recommendations, int64(len(items)))
	fields["count"] = len(items)
	logger.WithFields(fields).Debug("recommendations ready")
	return campaign.BatchReady{ProblemType: pt, Items: items}
}

func (m *Manager) submit(ctx context.Context, c campaign.Campaign, item types.Recommendation) types.SubmitOutcome {
	fields := logrus.Fields{
		"datasetId":   c.DatasetID,
		"campaignId":  c.ID,
		"algorithmId": item.AlgorithmID,
	}
	out := m.trySubmit(ctx, c, item)
	tctx, _ := tag.New(ctx, tag.Upsert(telemetry.KeyOutcome, out.Kind.String()))
	telemetry.RecordUnitMeasurement(tctx, telemetry.Submissions)

	switch out.Kind {
	case types.OutcomeAccepted:
		fields["experimentId"] = out.ExperimentID
		logger.WithFields(fields).Info("recommendation submitted")
	case types.OutcomeCapacityRejected:
		fields["reason"] = out.Reason
		logger.WithFields(fields).Debug("submission deferred")
	default:
		fields["reason"] = out.Reason
		logger.WithFields(fields).Error("submission failed")
	}
	return out
}

func (m *Manager) trySubmit(ctx context.Context, c campaign.Campaign, item types.Recommendation) types.SubmitOutcome {
	ai, err := m.p.Lab.GetDatasetAIStatus(ctx, c.DatasetID)
	if err != nil {
		if status.Code(err) == codes.Unavailable {
			return types.CapacityRejected("cannot confirm ai status: " + err.Error())
		}
		return types.Fatal("cannot read ai status: " + err.Error())
	}
	if ai != types.AIOn {
		return types.CapacityRejected("ai status is " + string(ai))
	}
	out, err := m.p.Lab.SubmitRecommendation(ctx, types.NewSubmission(item, m.p.User))
	if err != nil {
		if status.Code(err) == codes.Unavailable {
			return types.CapacityRejected("lab unreachable")
		}
		return types.Fatal(err.Error())
	}
	return out
}

func (m *Manager) store(e *entry, c campaign.Campaign) {
	m.mu.Lock()
	e.c = c
	m.mu.Unlock()
}

func (m *Manager) finish(ctx context.Context, e *entry, c campaign.Campaign) {
	m.mu.Lock()
	e.c = c
	if m.entries[c.DatasetID] == e {
		delete(m.entries, c.DatasetID)
	}
	m.mu.Unlock()

	fields := logrus.Fields{
		"datasetId":  c.DatasetID,
		"campaignId": c.ID,
		"state":      c.State.String(),
		"end":        c.End.String(),
		"submitted":  c.Submitted,
		"reason":     c.Reason,
	}
	if c.End == campaign.EndDataError || c.End == campaign.EndSubmitError {
		logger.WithFields(fields).Error("campaign terminated")
	} else {
		logger.WithFields(fields).Info("campaign ended")
	}
	tctx, _ := tag.New(ctx, tag.Upsert(telemetry.KeyEnd, c.End.String()))
	telemetry.RecordUnitMeasurement(tctx, telemetry.CampaignsEnded)

	// Ctx may be cancelled when the tick is interrupted; the bookkeeping
	// below still runs.
	bctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if m.p.Outcomes != nil {
		if err := m.p.Outcomes.RecordOutcome(bctx, outcomeOf(c)); err != nil {
			logger.WithFields(logrus.Fields{
				"datasetId": c.DatasetID,
				"error":     err.Error(),
			}).Warn("cannot record campaign outcome")
		}
	}
	if c.End != campaign.EndOffRequest {
		if err := m.p.Lab.SetDatasetAIStatus(bctx, c.DatasetID, types.AIOff); err != nil {
			logger.WithFields(logrus.Fields{
				"datasetId": c.DatasetID,
				"error":     err.Error(),
			}).Warn("cannot turn ai off for ended campaign")
		}
	}
}

func outcomeOf(c campaign.Campaign) *types.CampaignOutcome {
	return &types.CampaignOutcome{
		CampaignID:  c.ID,
		DatasetID:   c.DatasetID,
		DatasetName: c.DatasetName,
		State:       c.State.String(),
		End:         c.End.String(),
		Reason:      c.Reason,
		Submitted:   c.Submitted,
		StartedAt:   c.StartedAt,
		EndedAt:     c.UpdatedAt,
	}
}
