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

package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"automl.dev/advisor/internal/campaign"
	"automl.dev/advisor/pkg/types"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type campaignView struct {
	CampaignID  string                 `json:"campaign_id"`
	DatasetID   string                 `json:"dataset_id"`
	DatasetName string                 `json:"dataset_name,omitempty"`
	ProblemType types.ProblemType      `json:"problem_type,omitempty"`
	Policy      string                 `json:"policy"`
	State       string                 `json:"state"`
	Submitted   int                    `json:"submitted"`
	Pending     []types.Recommendation `json:"pending,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

type campaignLister interface {
	Campaigns() []campaign.Campaign
}

type outcomeLister interface {
	ListOutcomes(ctx context.Context, datasetID string) ([]*types.CampaignOutcome, error)
}

func campaignsHandler(m campaignLister) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		cs := m.Campaigns()
		out := make([]campaignView, 0, len(cs))
		for _, c := range cs {
			out = append(out, campaignView{
				CampaignID:  c.ID,
				DatasetID:   c.DatasetID,
				DatasetName: c.DatasetName,
				ProblemType: c.ProblemType,
				Policy:      c.Policy.String(),
				State:       c.State.String(),
				Submitted:   c.Submitted,
				Pending:     c.PendingBatch,
				StartedAt:   c.StartedAt,
				UpdatedAt:   c.UpdatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func outcomesHandler(s outcomeLister) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		datasetID := r.URL.Query().Get("dataset")
		if datasetID == "" {
			http.Error(w, "missing dataset parameter", http.StatusBadRequest)
			return
		}
		outcomes, err := s.ListOutcomes(r.Context(), datasetID)
		if err != nil {
			code := http.StatusInternalServerError
			if status.Code(err) == codes.Unavailable {
				code = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), code)
			return
		}
		if outcomes == nil {
			outcomes = []*types.CampaignOutcome{}
		}
		writeJSON(w, http.StatusOK, outcomes)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("cannot write response")
	}
}
