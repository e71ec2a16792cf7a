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

// Package lab is the client of the lab service, which stores datasets and
// results and runs the experiments the advisor submits.
package lab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"automl.dev/advisor/internal/config"
	"automl.dev/advisor/internal/expbo"
	"automl.dev/advisor/internal/rpc"
	"automl.dev/advisor/pkg/types"
	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "advisor",
		"component": "lab",
	})
)

const (
	apiPrefix = "/api/v1"
	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 4096
)

// Client talks to the lab over HTTP/JSON.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	// retry is the policy of idempotent reads. Nil means no retries.
	retry *backoff.ExponentialBackOff
}

// NewFromConfig creates a client for the lab configured under "lab".
func NewFromConfig(cfg config.View) (*Client, error) {
	httpClient, baseURL, err := rpc.HTTPClientFromConfig(cfg, "lab")
	if err != nil {
		return nil, errors.Wrap(err, "cannot create lab http client")
	}
	retry, err := expbo.Parse(cfg.GetString("lab.retry"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid lab.retry")
	}
	logger.WithFields(logrus.Fields{
		"baseURL": baseURL,
		"retry":   cfg.GetString("lab.retry"),
	}).Info("lab client configured")
	return New(httpClient, baseURL, cfg.GetString("lab.apiKey"), retry), nil
}

// New creates a client from its parts.
func New(httpClient *http.Client, baseURL, apiKey string, retry *backoff.ExponentialBackOff) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		retry:      retry,
	}
}

// GetNewResults returns the results of experiments finished strictly after
// since, in milliseconds since the epoch.
func (c *Client) GetNewResults(ctx context.Context, since int64) ([]types.Result, error) {
	q := url.Values{"since": []string{strconv.FormatInt(since, 10)}}
	var results []types.Result
	if err := c.get(ctx, "/experiments?"+q.Encode(), &results); err != nil {
		return nil, err
	}
	return results, nil
}

// GetDatasets returns the datasets whose AI status is s.
func (c *Client) GetDatasets(ctx context.Context, s types.AIStatus) ([]types.Dataset, error) {
	q := url.Values{"ai": []string{string(s)}}
	var datasets []types.Dataset
	if err := c.get(ctx, "/datasets?"+q.Encode(), &datasets); err != nil {
		return nil, err
	}
	return datasets, nil
}

// GetRequestedDatasets returns the datasets users asked recommendations for.
func (c *Client) GetRequestedDatasets(ctx context.Context) ([]types.Dataset, error) {
	return c.GetDatasets(ctx, types.AIRequested)
}

// GetOffDatasets returns the datasets users turned the AI off for.
func (c *Client) GetOffDatasets(ctx context.Context) ([]types.Dataset, error) {
	return c.GetDatasets(ctx, types.AIOff)
}

// GetDatasetAIStatus returns the current AI status of a dataset.
func (c *Client) GetDatasetAIStatus(ctx context.Context, datasetID string) (types.AIStatus, error) {
	var d types.Dataset
	if err := c.get(ctx, "/datasets/"+url.PathEscape(datasetID), &d); err != nil {
		return "", err
	}
	return d.AI, nil
}

// SetDatasetAIStatus sets the AI status of a dataset.
func (c *Client) SetDatasetAIStatus(ctx context.Context, datasetID string, s types.AIStatus) error {
	body := map[string]types.AIStatus{"ai": s}
	return c.do(ctx, http.MethodPut, "/datasets/"+url.PathEscape(datasetID)+"/ai", body, nil, c.retry)
}

// GetMetafeatures returns the metafeatures of a dataset.
func (c *Client) GetMetafeatures(ctx context.Context, datasetID string) (*types.Metafeatures, error) {
	mf := &types.Metafeatures{}
	if err := c.get(ctx, "/datasets/"+url.PathEscape(datasetID)+"/metafeatures", mf); err != nil {
		return nil, err
	}
	if mf.DatasetID == "" {
		mf.DatasetID = datasetID
	}
	return mf, nil
}

// GetAlgorithms returns the algorithm catalogue of a problem type.
func (c *Client) GetAlgorithms(ctx context.Context, pt types.ProblemType) ([]types.Algorithm, error) {
	q := url.Values{"category": []string{string(pt)}}
	var algs []types.Algorithm
	if err := c.get(ctx, "/projects?"+q.Encode(), &algs); err != nil {
		return nil, err
	}
	return algs, nil
}

// SetRecommenderStatus reports the advisor's status to the lab.
func (c *Client) SetRecommenderStatus(ctx context.Context, s types.RecommenderStatus) error {
	body := map[string]types.RecommenderStatus{"status": s}
	return c.do(ctx, http.MethodPut, "/recommender/status", body, nil, c.retry)
}

// HealthCheck reports whether the lab can be reached. Any HTTP answer
// counts as reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "/datasets?ai="+string(types.AIOn), nil, nil, nil)
	if status.Code(err) == codes.Unavailable {
		return err
	}
	return nil
}

type experimentResponse struct {
	ID    string `json:"_id"`
	Error string `json:"error"`
}

// SubmitRecommendation asks the lab to run an experiment. A lab without free
// machines answers 501 or 503, which yields a CapacityRejected outcome. Any
// other refusal is Fatal. The error is only set when the lab could not be
// reached; the submission is not retried.
func (c *Client) SubmitRecommendation(ctx context.Context, s types.Submission) (types.SubmitOutcome, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/projects/"+url.PathEscape(s.AlgorithmID)+"/experiment", s)
	if err != nil {
		return types.SubmitOutcome{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.SubmitOutcome{}, status.Errorf(codes.Unavailable, "lab unreachable: %v", err)
	}
	defer drainAndClose(resp.Body)

	var body experimentResponse
	raw, _ := ioutil.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			body.Error = string(raw)
		}
	}

	fields := logrus.Fields{
		"datasetId":   s.DatasetID,
		"algorithmId": s.AlgorithmID,
		"status":      resp.StatusCode,
	}
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		logger.WithFields(fields).WithField("experimentId", body.ID).Debug("experiment launched")
		return types.Accepted(body.ID), nil
	case resp.StatusCode == http.StatusNotImplemented || resp.StatusCode == http.StatusServiceUnavailable:
		logger.WithFields(fields).Debug("no machine capacity available")
		return types.CapacityRejected(reasonOf(body.Error, resp)), nil
	}
	logger.WithFields(fields).WithField("error", body.Error).Error("lab refused the experiment")
	return types.Fatal(reasonOf(body.Error, resp)), nil
}

func reasonOf(msg string, resp *http.Response) string {
	if msg != "" {
		return msg
	}
	return resp.Status
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out, c.retry)
}

// do sends an idempotent request, retrying Unavailable failures with retry.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, retry *backoff.ExponentialBackOff) error {
	op := func() error {
		err := c.roundTrip(ctx, method, path, in, out)
		if err != nil && status.Code(err) != codes.Unavailable {
			return backoff.Permanent(err)
		}
		return err
	}
	if retry == nil {
		return unwrapPermanent(op())
	}
	b := *retry
	b.Reset()
	err := backoff.RetryNotify(op, backoff.WithContext(&b, ctx), func(err error, next time.Duration) {
		logger.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"error":  err.Error(),
			"next":   next,
		}).Debug("lab request failed, retrying")
	})
	return unwrapPermanent(err)
}

func unwrapPermanent(err error) error {
	if p, ok := err.(*backoff.PermanentError); ok {
		return p.Err
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return status.FromContextError(ctx.Err()).Err()
		}
		return status.Errorf(codes.Unavailable, "lab unreachable: %v", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := ioutil.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return status.Errorf(codeOf(resp.StatusCode), "%s %s: %s %s", method, path, resp.Status, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return status.Errorf(codes.Internal, "cannot decode %s %s: %v", method, path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, in interface{}) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "cannot encode request: %v", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "cannot build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}
	return req, nil
}

func codeOf(httpStatus int) codes.Code {
	switch {
	case httpStatus == http.StatusNotFound:
		return codes.NotFound
	case httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden:
		return codes.PermissionDenied
	case httpStatus == http.StatusTooManyRequests || httpStatus >= 500:
		return codes.Unavailable
	}
	return codes.FailedPrecondition
}

func drainAndClose(body io.ReadCloser) {
	io.Copy(ioutil.Discard, io.LimitReader(body, maxErrorBody))
	body.Close()
}
