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

package rpc

import (
	"crypto/tls"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"automl.dev/advisor/internal/config"
	"automl.dev/advisor/internal/logging"
	"automl.dev/advisor/internal/telemetry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/plugin/ochttp"
)

const (
	// ConfigNameEnableRPCLogging is the config name for enabling RPC logging.
	ConfigNameEnableRPCLogging = "logging.rpc"

	defaultClientTimeout = 10 * time.Second
)

var (
	clientLogger = logrus.WithFields(logrus.Fields{
		"app":       "advisor",
		"component": "client",
	})
)

// ClientParams contains the connection parameters of an HTTP service.
type ClientParams struct {
	Address                 string
	TrustedCertificate      []byte
	Timeout                 time.Duration
	EnableRPCLogging        bool
	EnableRPCPayloadLogging bool
	EnableMetrics           bool
}

func (p *ClientParams) usingTLS() bool {
	return len(p.TrustedCertificate) > 0
}

// HTTPClientFromConfig creates an HTTP client for the service configured
// under prefix (prefix.hostname, prefix.httpport, prefix.timeout and
// prefix.tls.trustedCertificatePath). It returns the client and the base URL
// of the service.
func HTTPClientFromConfig(cfg config.View, prefix string) (*http.Client, string, error) {
	params := &ClientParams{
		Address:                 toAddress(cfg.GetString(prefix+".hostname"), cfg.GetInt(prefix+".httpport")),
		Timeout:                 cfg.GetDuration(prefix + ".timeout"),
		EnableRPCLogging:        cfg.GetBool(ConfigNameEnableRPCLogging),
		EnableRPCPayloadLogging: logging.IsDebugEnabled(cfg),
		EnableMetrics:           cfg.GetBool(telemetry.ConfigNameEnableMetrics),
	}

	if path := cfg.GetString(prefix + ".tls.trustedCertificatePath"); path != "" {
		var err error
		params.TrustedCertificate, err = ioutil.ReadFile(path)
		if err != nil {
			clientLogger.WithError(err).Error("failed to read tls trusted certificate to establish a secure http client.")
			return nil, "", errors.Wrapf(err, "cannot read trusted certificate %s", path)
		}
	}

	return HTTPClientFromParams(params)
}

// HTTPClientFromParams creates an HTTP client from the parameters.
func HTTPClientFromParams(params *ClientParams) (*http.Client, string, error) {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	baseURL, err := sanitizeHTTPAddress(params.Address, params.usingTLS())
	if err != nil {
		clientLogger.WithError(err).Error("cannot parse address")
		return nil, "", err
	}

	if params.usingTLS() {
		pool, err := trustedCertificateFromFileData(params.TrustedCertificate)
		if err != nil {
			clientLogger.WithError(err).Error("failed to get cert pool from file.")
			return nil, "", err
		}
		u, _ := url.Parse(baseURL)
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				ServerName: u.Hostname(),
				RootCAs:    pool,
			},
		}
	}

	if params.EnableRPCLogging {
		attachTransport(httpClient, func(transport http.RoundTripper) http.RoundTripper {
			return &loggingHTTPClient{
				transport:   transport,
				logPayloads: params.EnableRPCPayloadLogging,
			}
		})
	}

	if params.EnableMetrics {
		attachTransport(httpClient, func(transport http.RoundTripper) http.RoundTripper {
			return &ochttp.Transport{
				Base: transport,
			}
		})
	}

	return httpClient, baseURL, nil
}

func sanitizeHTTPAddress(address string, preferHTTPS bool) (string, error) {
	lca := strings.ToLower(address)
	if !strings.HasPrefix(lca, "http://") && !strings.HasPrefix(lca, "https://") {
		if preferHTTPS {
			address = "https://" + address
		} else {
			address = "http://" + address
		}
	}
	u, err := url.Parse(address)
	if err != nil || u.Host == "" {
		return "", errors.Errorf("%s is not a valid HTTP(S) address", address)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

func toAddress(hostname string, port int) string {
	if port == 0 {
		return hostname
	}
	return fmt.Sprintf("%s:%d", hostname, port)
}

type loggingHTTPClient struct {
	transport   http.RoundTripper
	logPayloads bool
}

func (c *loggingHTTPClient) RoundTrip(req *http.Request) (*http.Response, error) {
	dumpReqLog, dumpReqErr := httputil.DumpRequestOut(req, c.logPayloads)
	fields := logrus.Fields{
		"method": req.Method,
		"url":    req.URL.String(),
		"proto":  req.Proto,
	}
	if dumpReqErr == nil {
		clientLogger.WithFields(fields).Debug(string(dumpReqLog))
	} else {
		clientLogger.WithError(dumpReqErr).WithFields(fields).Debug("cannot dump request")
	}
	resp, err := c.transport.RoundTrip(req)
	if err == nil {
		dumpRespLog, dumpRespErr := httputil.DumpResponse(resp, c.logPayloads)
		if dumpRespErr == nil {
			clientLogger.WithFields(fields).Debug(string(dumpRespLog))
		} else {
			clientLogger.WithError(dumpRespErr).WithFields(fields).Debug("request was successful but cannot dump response")
		}
	} else {
		clientLogger.WithError(err).WithFields(fields).Debug("request failed")
	}
	return resp, err
}

func attachTransport(client *http.Client, wrapper func(http.RoundTripper) http.RoundTripper) {
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = wrapper(transport)
}
