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

// Package types defines the objects exchanged between the advisor, the lab
// service and the recommendation oracles.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProblemType selects the family of algorithms, and therefore the oracle,
// serving a dataset.
type ProblemType string

const (
	Classification ProblemType = "classification"
	Regression     ProblemType = "regression"
)

// ProblemTypes lists every supported problem type.
var ProblemTypes = []ProblemType{Classification, Regression}

// Valid reports whether p is a supported problem type.
func (p ProblemType) Valid() bool {
	for _, known := range ProblemTypes {
		if p == known {
			return true
		}
	}
	return false
}

// AIStatus is the per-dataset switch users flip in the lab to ask for
// recommendations.
type AIStatus string

const (
	AIRequested AIStatus = "requested"
	AIOn        AIStatus = "on"
	AIOff       AIStatus = "off"
)

// RecommenderStatus is reported to the lab so users can see whether the
// advisor is available.
type RecommenderStatus string

const (
	RecommenderInitializing RecommenderStatus = "initializing"
	RecommenderRunning      RecommenderStatus = "running"
	RecommenderDisabled     RecommenderStatus = "disabled"
)

// Dataset is a dataset registered in the lab.
type Dataset struct {
	ID   string   `json:"_id"`
	Name string   `json:"name"`
	AI   AIStatus `json:"ai,omitempty"`
}

// Parameters are the hyperparameters of one algorithm run.
type Parameters map[string]interface{}

// Key returns a canonical encoding of p. Equal parameter sets yield equal
// keys regardless of map order.
func (p Parameters) Key() string {
	if len(p) == 0 {
		return "{}"
	}
	// encoding/json sorts map keys.
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%v", map[string]interface{}(p))
	}
	return string(b)
}

// Result is a finished experiment.
type Result struct {
	ID          string             `json:"_id"`
	DatasetID   string             `json:"dataset_id"`
	ProblemType ProblemType        `json:"prediction_type"`
	AlgorithmID string             `json:"algorithm_id"`
	Parameters  Parameters         `json:"parameters"`
	Scores      map[string]float64 `json:"scores"`
	// FinishedAt is in milliseconds since the epoch.
	FinishedAt int64 `json:"finished"`
}

// Metafeatures describe a dataset. They never change for a given dataset.
type Metafeatures struct {
	DatasetID string `json:"dataset_id"`
	// Hash identifies the dataset content; two datasets with the same data
	// share it.
	Hash        string             `json:"_id"`
	ProblemType ProblemType        `json:"_prediction_type"`
	Features    map[string]float64 `json:"features,omitempty"`
}

// Key returns the identifier oracles index history by.
func (m *Metafeatures) Key() string {
	if m.Hash != "" {
		return m.Hash
	}
	return m.DatasetID
}

// Candidate is one (algorithm, parameters) pair an oracle can recommend.
type Candidate struct {
	AlgorithmID string
	Parameters  Parameters
}

// Key identifies the candidate.
func (c Candidate) Key() string {
	return c.AlgorithmID + "|" + c.Parameters.Key()
}

// Algorithm is an entry of the lab's algorithm catalogue together with the
// parameter settings the advisor may use for it.
type Algorithm struct {
	ID          string       `json:"_id"`
	Name        string       `json:"name"`
	ProblemType ProblemType  `json:"category"`
	Grid        []Parameters `json:"grid"`
}

// Candidates flattens the parameter grids of algs.
func Candidates(algs []Algorithm) []Candidate {
	var out []Candidate
	for _, a := range algs {
		if len(a.Grid) == 0 {
			out = append(out, Candidate{AlgorithmID: a.ID, Parameters: Parameters{}})
			continue
		}
		for _, p := range a.Grid {
			out = append(out, Candidate{AlgorithmID: a.ID, Parameters: p})
		}
	}
	return out
}

// Recommendation is a ranked suggestion for a dataset.
type Recommendation struct {
	DatasetID   string     `json:"dataset_id"`
	AlgorithmID string     `json:"algorithm_id"`
	Parameters  Parameters `json:"parameters"`
	Score       float64    `json:"ai_score"`
}

// OutcomeKind classifies the answer of the lab to a submission.
type OutcomeKind int

const (
	// OutcomeAccepted means an experiment was launched.
	OutcomeAccepted OutcomeKind = iota
	// OutcomeCapacityRejected means no machine could take the experiment
	// now; the same submission may succeed later.
	OutcomeCapacityRejected
	// OutcomeFatal means the submission can never succeed.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeCapacityRejected:
		return "capacityRejected"
	case OutcomeFatal:
		return "fatalError"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// SubmitOutcome is the answer of the lab to a submission.
type SubmitOutcome struct {
	Kind         OutcomeKind
	Reason       string
	ExperimentID string
}

// Accepted returns an accepted outcome for the given experiment.
func Accepted(experimentID string) SubmitOutcome {
	return SubmitOutcome{Kind: OutcomeAccepted, ExperimentID: experimentID}
}

// CapacityRejected returns a capacity rejection.
func CapacityRejected(reason string) SubmitOutcome {
	return SubmitOutcome{Kind: OutcomeCapacityRejected, Reason: reason}
}

// Fatal returns a fatal outcome.
func Fatal(reason string) SubmitOutcome {
	return SubmitOutcome{Kind: OutcomeFatal, Reason: reason}
}

// CampaignOutcome records a campaign that left the active set.
type CampaignOutcome struct {
	CampaignID  string    `json:"campaign_id"`
	DatasetID   string    `json:"dataset_id"`
	DatasetName string    `json:"dataset_name,omitempty"`
	State       string    `json:"state"`
	End         string    `json:"end"`
	Reason      string    `json:"reason,omitempty"`
	Submitted   int       `json:"submitted"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}

// Submission asks the lab to run one experiment.
type Submission struct {
	DatasetID   string     `json:"datasetId"`
	AlgorithmID string     `json:"algorithmId"`
	Username    string     `json:"username"`
	Parameters  Parameters `json:"parameters"`
	AIScore     float64    `json:"aiScore"`
}

// NewSubmission returns the submission of r on behalf of user.
func NewSubmission(r Recommendation, user string) Submission {
	return Submission{
		DatasetID:   r.DatasetID,
		AlgorithmID: r.AlgorithmID,
		Username:    user,
		Parameters:  r.Parameters,
		AIScore:     r.Score,
	}
}
