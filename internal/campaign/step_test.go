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
	"errors"
	"testing"
	"time"

	"automl.dev/advisor/pkg/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)

func rec(alg string, score float64) types.Recommendation {
	return types.Recommendation{DatasetID: "ds1", AlgorithmID: alg, Parameters: types.Parameters{}, Score: score}
}

func TestScenarioSingleRecommendationCompletesInOneTick(t *testing.T) {
	require := require.New(t)
	c := New("ds1", "iris", Policy{Condition: FixedCount, Target: 1}, t0)
	require.Equal(Created, c.State)

	var states []State
	c, eff := Step(c, Tick{}, t0)
	states = append(states, c.State)
	require.Equal(Recommend{DatasetID: "ds1", Count: 1}, eff)

	c, eff = Step(c, BatchReady{ProblemType: types.Classification, Items: []types.Recommendation{rec("a", 0.9)}}, t0)
	states = append(states, c.State)
	require.Equal(Submit{Item: rec("a", 0.9)}, eff)
	require.Equal(types.Classification, c.ProblemType)

	c, eff = Step(c, Submitted{Outcome: types.Accepted("exp1")}, t0)
	states = append(states, c.State)
	require.Equal(Finish{}, eff)
	require.Equal(EndCompleted, c.End)
	require.Equal(1, c.Submitted)

	if diff := cmp.Diff([]State{AwaitingRecommendation, AwaitingSubmission, Completed}, states); diff != "" {
		t.Errorf("state path mismatch (-want +got):\n%s", diff)
	}
}

// drive runs one tick against a scripted oracle and lab.
func drive(c Campaign, now time.Time, batch []types.Recommendation, outcomes func(types.Recommendation) types.SubmitOutcome) (Campaign, []types.Recommendation) {
	var attempted []types.Recommendation
	c, eff := Step(c, Tick{}, now)
	for {
		switch e := eff.(type) {
		case Recommend:
			n := e.Count
			if n > len(batch) {
				n = len(batch)
			}
			c, eff = Step(c, BatchReady{ProblemType: types.Regression, Items: batch[:n]}, now)
		case Submit:
			attempted = append(attempted, e.Item)
			c, eff = Step(c, Submitted{Outcome: outcomes(e.Item)}, now)
		default:
			return c, attempted
		}
	}
}

func accept(types.Recommendation) types.SubmitOutcome { return types.Accepted("x") }

func TestFixedCountCompletesAfterExactlyTarget(t *testing.T) {
	for _, k := range []int{1, 2, 5} {
		c := New("ds1", "", Policy{Condition: FixedCount, Target: float64(k)}, t0)
		for tick := 1; tick <= k; tick++ {
			assert.False(t, c.State.Terminal(), "k=%d finished before tick %d", k, tick)
			c, _ = drive(c, t0, []types.Recommendation{rec("a", 1)}, accept)
		}
		assert.Equal(t, Completed, c.State, "k=%d", k)
		assert.Equal(t, k, c.Submitted, "k=%d", k)

		again, eff := Step(c, Tick{}, t0)
		assert.Equal(t, Wait{}, eff)
		assert.Equal(t, k, again.Submitted)
	}
}

func TestUnboundedNeverCompletes(t *testing.T) {
	c := New("ds1", "", Policy{Condition: Unbounded, BatchSize: 3}, t0)
	batch := []types.Recommendation{rec("a", 3), rec("b", 2), rec("c", 1), rec("d", 0)}
	for tick := 0; tick < 20; tick++ {
		var attempted []types.Recommendation
		c, attempted = drive(c, t0.Add(time.Duration(tick)*time.Hour), batch, accept)
		require.Len(t, attempted, 3)
		require.Equal(t, AwaitingRecommendation, c.State)
	}
	assert.Equal(t, 60, c.Submitted)

	c, eff := Step(c, OffRequested{}, t0)
	assert.Equal(t, Finish{}, eff)
	assert.Equal(t, Terminated, c.State)
	assert.Equal(t, EndOffRequest, c.End)
}

func TestLegacyZeroTargetIsUnbounded(t *testing.T) {
	c := New("ds1", "", Policy{Condition: FixedCount, Target: 0}, t0)
	assert.Equal(t, Unbounded, c.Policy.Condition)
	assert.Equal(t, 1, c.Policy.BatchSize)
}

func TestCapacityRejectionBlocksLaterItems(t *testing.T) {
	c := New("ds1", "", Policy{Condition: Unbounded, BatchSize: 2}, t0)
	batch := []types.Recommendation{rec("a", 2), rec("b", 1)}

	busy := func(types.Recommendation) types.SubmitOutcome { return types.CapacityRejected("No machine capacity available") }
	for tick := 0; tick < 3; tick++ {
		var attempted []types.Recommendation
		c, attempted = drive(c, t0, batch, busy)
		require.Equal(t, []types.Recommendation{rec("a", 2)}, attempted)
		require.Equal(t, Retrying, c.State)
		require.Equal(t, batch, c.PendingBatch)
	}

	c, attempted := drive(c, t0, nil, accept)
	assert.Equal(t, batch, attempted)
	assert.Equal(t, 2, c.Submitted)
	assert.Empty(t, c.PendingBatch)
}

func TestScenarioRetriedThreeTicks(t *testing.T) {
	c := New("ds1", "", Policy{Condition: FixedCount, Target: 1}, t0)
	batch := []types.Recommendation{rec("a", 1)}
	tries := 0
	fourth := func(types.Recommendation) types.SubmitOutcome {
		tries++
		if tries < 4 {
			return types.CapacityRejected("busy")
		}
		return types.Accepted("x")
	}
	for tick := 1; tick <= 3; tick++ {
		c, _ = drive(c, t0, batch, fourth)
		require.Equal(t, Retrying, c.State, "tick %d", tick)
		require.Equal(t, 0, c.Submitted)
	}
	c, _ = drive(c, t0, batch, fourth)
	assert.Equal(t, Completed, c.State)
	assert.Equal(t, 1, c.Submitted)
	assert.Equal(t, 4, tries)
}

func TestOffWhileRetrying(t *testing.T) {
	c := New("ds1", "", Policy{Condition: FixedCount, Target: 1}, t0)
	c, _ = drive(c, t0, []types.Recommendation{rec("a", 1)}, func(types.Recommendation) types.SubmitOutcome {
		return types.CapacityRejected("busy")
	})
	require.Equal(t, Retrying, c.State)

	c, eff := Step(c, OffRequested{}, t0)
	assert.Equal(t, Finish{}, eff)
	assert.Equal(t, Terminated, c.State)
	assert.Equal(t, 0, c.Submitted)
}

func TestFatalOutcomes(t *testing.T) {
	c := New("ds1", "", Policy{Condition: FixedCount, Target: 3}, t0)
	c, _ = drive(c, t0, []types.Recommendation{rec("a", 1)}, func(types.Recommendation) types.SubmitOutcome {
		return types.Fatal("algorithm not found")
	})
	assert.Equal(t, Terminated, c.State)
	assert.Equal(t, EndSubmitError, c.End)
	assert.Contains(t, c.Reason, "algorithm not found")

	c = New("ds1", "", Policy{Condition: FixedCount, Target: 3}, t0)
	c, _ = Step(c, Tick{}, t0)
	c, eff := Step(c, BatchFailed{Err: errors.New("no metafeatures")}, t0)
	assert.Equal(t, Finish{}, eff)
	assert.Equal(t, EndDataError, c.End)
	assert.Equal(t, "no metafeatures", c.Reason)

	c = New("ds1", "", Policy{Condition: FixedCount, Target: 3}, t0)
	c, _ = Step(c, Tick{}, t0)
	c, _ = Step(c, BatchReady{}, t0)
	assert.Equal(t, Terminated, c.State)
	assert.Equal(t, EndDataError, c.End)
}

func TestElapsedTime(t *testing.T) {
	c := New("ds1", "", Policy{Condition: ElapsedTime, Target: 60}, t0)
	deadline, ok := c.Deadline()
	require.True(t, ok)
	require.Equal(t, t0.Add(time.Minute), deadline)

	c, _ = drive(c, t0.Add(10*time.Second), []types.Recommendation{rec("a", 1)}, accept)
	assert.Equal(t, AwaitingRecommendation, c.State)

	// A submission dispatched before the deadline finishes after it.
	c, eff := Step(c, Tick{}, t0.Add(59*time.Second))
	require.IsType(t, Recommend{}, eff)
	c, _ = Step(c, BatchReady{Items: []types.Recommendation{rec("b", 1)}}, t0.Add(59*time.Second))
	c, eff = Step(c, Submitted{Outcome: types.CapacityRejected("busy")}, t0.Add(59*time.Second))
	require.Equal(t, Wait{}, eff)

	c, eff = Step(c, Tick{}, t0.Add(2*time.Minute))
	require.Equal(t, Submit{Item: rec("b", 1)}, eff)
	c, eff = Step(c, Submitted{Outcome: types.Accepted("x")}, t0.Add(2*time.Minute))
	assert.Equal(t, Finish{}, eff)
	assert.Equal(t, Completed, c.State)
	assert.Equal(t, 2, c.Submitted)
}

func TestStepDoesNotAliasBatch(t *testing.T) {
	items := []types.Recommendation{rec("a", 2), rec("b", 1)}
	c := New("ds1", "", Policy{Condition: Unbounded, BatchSize: 2}, t0)
	c, _ = Step(c, Tick{}, t0)
	c, _ = Step(c, BatchReady{Items: items}, t0)
	before := c
	after, _ := Step(c, Submitted{Outcome: types.Accepted("x")}, t0)

	assert.Len(t, before.PendingBatch, 2)
	assert.Len(t, after.PendingBatch, 1)
	assert.Equal(t, rec("a", 2), items[0])
}

func TestUnexpectedEventsAreIgnored(t *testing.T) {
	c := New("ds1", "", Policy{Condition: FixedCount, Target: 1}, t0)
	got, eff := Step(c, Submitted{Outcome: types.Accepted("x")}, t0)
	assert.Equal(t, Wait{}, eff)
	if diff := cmp.Diff(c, got); diff != "" {
		t.Errorf("campaign changed (-want +got):\n%s", diff)
	}
}
