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

package campaign

import (
	"fmt"
	"time"

	"automl.dev/advisor/pkg/types"
)

// Event is something that happened to a campaign.
type Event interface {
	isEvent()
}

// Tick starts the campaign's step for this orchestration tick.
type Tick struct{}

// OffRequested is an explicit off-request for the campaign's dataset.
type OffRequested struct{}

// BatchReady carries the oracle's ranked recommendations, best first.
type BatchReady struct {
	ProblemType types.ProblemType
	Items       []types.Recommendation
}

// BatchFailed reports that no batch could be produced.
type BatchFailed struct {
	Err error
}

// Submitted carries the outcome of submitting the head of the pending batch.
type Submitted struct {
	Outcome types.SubmitOutcome
}

func (Tick) isEvent()         {}
func (OffRequested) isEvent() {}
func (BatchReady) isEvent()   {}
func (BatchFailed) isEvent()  {}
func (Submitted) isEvent()    {}

// Effect is the single action the caller must perform after a step.
type Effect interface {
	isEffect()
}

// Wait ends the campaign's work for this tick.
type Wait struct{}

// Recommend asks the oracle for Count recommendations. The result is fed
// back as BatchReady or BatchFailed.
type Recommend struct {
	DatasetID   string
	ProblemType types.ProblemType
	Count       int
}

// Submit asks for Item to be submitted to the lab. The result is fed back as
// Submitted.
type Submit struct {
	Item types.Recommendation
}

// Finish reports that the campaign reached Completed or Terminated and must
// leave the active set.
type Finish struct{}

func (Wait) isEffect()      {}
func (Recommend) isEffect() {}
func (Submit) isEffect()    {}
func (Finish) isEffect()    {}

// Step applies ev to c at time now and returns the next campaign and the
// effect to perform. Events that make no sense in the current state leave
// the campaign unchanged and return Wait. Step never mutates c's batch in
// place.
func Step(c Campaign, ev Event, now time.Time) (Campaign, Effect) {
	if c.State.Terminal() {
		return c, Wait{}
	}
	switch e := ev.(type) {
	case OffRequested:
		return end(c, Terminated, EndOffRequest, "ai turned off", now)

	case Tick:
		switch c.State {
		case Created, AwaitingRecommendation:
			c.State = AwaitingRecommendation
			c.UpdatedAt = now
			return requestBatch(c, now)
		case AwaitingSubmission, Retrying:
			if len(c.PendingBatch) == 0 {
				c.State = AwaitingRecommendation
				return requestBatch(c, now)
			}
			c.State = AwaitingSubmission
			c.UpdatedAt = now
			return c, Submit{Item: c.PendingBatch[0]}
		}

	case BatchReady:
		if c.State != AwaitingRecommendation {
			return c, Wait{}
		}
		if len(e.Items) == 0 {
			return end(c, Terminated, EndDataError, "recommender returned no recommendations", now)
		}
		if c.ProblemType == "" {
			c.ProblemType = e.ProblemType
		}
		n := c.needed()
		if len(e.Items) < n {
			n = len(e.Items)
		}
		c.PendingBatch = append([]types.Recommendation(nil), e.Items[:n]...)
		c.State = AwaitingSubmission
		c.UpdatedAt = now
		return c, Submit{Item: c.PendingBatch[0]}

	case BatchFailed:
		if c.State != AwaitingRecommendation {
			return c, Wait{}
		}
		reason := "recommendation failed"
		if e.Err != nil {
			reason = e.Err.Error()
		}
		return end(c, Terminated, EndDataError, reason, now)

	case Submitted:
		if c.State != AwaitingSubmission || len(c.PendingBatch) == 0 {
			return c, Wait{}
		}
		return submitted(c, e.Outcome, now)
	}
	return c, Wait{}
}

func requestBatch(c Campaign, now time.Time) (Campaign, Effect) {
	if c.satisfied(now) {
		return end(c, Completed, EndCompleted, c.Policy.String()+" reached", now)
	}
	return c, Recommend{DatasetID: c.DatasetID, ProblemType: c.ProblemType, Count: c.needed()}
}

func submitted(c Campaign, out types.SubmitOutcome, now time.Time) (Campaign, Effect) {
	c.UpdatedAt = now
	switch out.Kind {
	case types.OutcomeAccepted:
		c.Submitted++
		c.PendingBatch = append([]types.Recommendation(nil), c.PendingBatch[1:]...)
		if c.Policy.Condition == FixedCount && c.satisfied(now) {
			return end(c, Completed, EndCompleted, c.Policy.String()+" reached", now)
		}
		if len(c.PendingBatch) > 0 {
			return c, Submit{Item: c.PendingBatch[0]}
		}
		c.PendingBatch = nil
		c.State = AwaitingRecommendation
		if c.satisfied(now) {
			return end(c, Completed, EndCompleted, c.Policy.String()+" reached", now)
		}
		return c, Wait{}

	case types.OutcomeCapacityRejected:
		c.State = Retrying
		return c, Wait{}
	}
	reason := out.Reason
	if reason == "" {
		reason = out.Kind.String()
	}
	return end(c, Terminated, EndSubmitError, fmt.Sprintf("submission failed: %s", reason), now)
}

func end(c Campaign, s State, k EndKind, reason string, now time.Time) (Campaign, Effect) {
	c.State = s
	c.End = k
	c.Reason = reason
	c.UpdatedAt = now
	return c, Finish{}
}
