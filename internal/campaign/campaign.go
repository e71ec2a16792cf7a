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

// Package campaign holds the per-dataset recommendation campaign and the
// state machine that drives it.
//
// The state machine is a pure function: Step takes a campaign and the event
// that happened to it and returns the next campaign together with the single
// effect the caller must carry out. The caller feeds the effect's result back
// as the next event. No I/O happens in this package.
package campaign

import (
	"fmt"
	"time"

	"automl.dev/advisor/pkg/types"
	"github.com/rs/xid"
)

// State of a campaign.
type State int

const (
	Created State = iota
	AwaitingRecommendation
	AwaitingSubmission
	Retrying
	Completed
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case AwaitingRecommendation:
		return "AwaitingRecommendation"
	case AwaitingSubmission:
		return "AwaitingSubmission"
	case Retrying:
		return "Retrying"
	case Completed:
		return "Completed"
	case Terminated:
		return "Terminated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether a campaign in state s leaves the active set.
func (s State) Terminal() bool {
	return s == Completed || s == Terminated
}

// EndKind records why a campaign ended.
type EndKind int

const (
	NotEnded EndKind = iota
	// EndCompleted: the termination condition was met.
	EndCompleted
	// EndOffRequest: a user turned the AI off for the dataset.
	EndOffRequest
	// EndDataError: no recommendation could be produced.
	EndDataError
	// EndSubmitError: the lab refused a submission for good.
	EndSubmitError
)

func (k EndKind) String() string {
	switch k {
	case NotEnded:
		return "notEnded"
	case EndCompleted:
		return "completed"
	case EndOffRequest:
		return "offRequest"
	case EndDataError:
		return "dataError"
	case EndSubmitError:
		return "submitError"
	}
	return fmt.Sprintf("EndKind(%d)", int(k))
}

// Campaign is one recommendation run for one dataset.
type Campaign struct {
	// ID is unique per campaign; a dataset requested again gets a new one.
	ID          string
	DatasetID   string
	DatasetName string
	// ProblemType is empty until the dataset's metafeatures are first read.
	ProblemType types.ProblemType
	Policy      Policy
	State       State

	// Submitted counts accepted submissions.
	Submitted int
	StartedAt time.Time
	UpdatedAt time.Time

	// PendingBatch holds the recommendations of the current batch that were
	// not accepted yet, best first. The head is the next one submitted.
	PendingBatch []types.Recommendation

	End    EndKind
	Reason string
}

// New returns a campaign in the Created state.
func New(datasetID, datasetName string, policy Policy, now time.Time) Campaign {
	return Campaign{
		ID:          xid.New().String(),
		DatasetID:   datasetID,
		DatasetName: datasetName,
		Policy:      policy.Normalize(),
		State:       Created,
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// Deadline returns the end of an ElapsedTime campaign.
func (c Campaign) Deadline() (time.Time, bool) {
	if c.Policy.Condition != ElapsedTime {
		return time.Time{}, false
	}
	return c.StartedAt.Add(c.Policy.Duration()), true
}

// satisfied reports whether the termination condition is met.
func (c Campaign) satisfied(now time.Time) bool {
	switch c.Policy.Condition {
	case FixedCount:
		return float64(c.Submitted) >= c.Policy.Target
	case ElapsedTime:
		deadline, _ := c.Deadline()
		return now.After(deadline)
	}
	return false
}

// needed is the size of the next batch.
func (c Campaign) needed() int {
	if c.Policy.Condition == Unbounded {
		return c.Policy.BatchSize
	}
	return 1
}
