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
	"context"
	"crypto/tls"
	"io/ioutil"
	"net"
	"net/http"
	"sync"
	"time"

	"automl.dev/advisor/internal/config"
	"automl.dev/advisor/internal/telemetry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/plugin/ochttp"
)

var (
	serverLogger = logrus.WithFields(logrus.Fields{
		"app":       "advisor",
		"component": "server",
	})
)

const shutdownTimeout = 5 * time.Second

// ServerParams holds all the parameters required to start the HTTP server.
type ServerParams struct {
	// ServeMux is the router for the HTTP server. The health check endpoint
	// is registered on Start.
	ServeMux               *http.ServeMux
	listener               *ListenerHolder
	handlersForHealthCheck []func(context.Context) error
	enableMetrics          bool

	// Root CA public certificate in PEM format.
	rootCaPublicCertificateFileData []byte
	// Public certificate in PEM format.
	publicCertificateFileData []byte
	// Private key in PEM format.
	privateKeyFileData []byte
}

// NewServerParamsFromConfig returns server Params initialized from the configuration file.
func NewServerParamsFromConfig(cfg config.View, prefix string, listen func(network, address string) (net.Listener, error)) (*ServerParams, error) {
	lh, err := NewListenerHolder(cfg.GetInt(prefix+".httpport"), listen)
	if err != nil {
		return nil, err
	}
	p := NewServerParamsFromListener(lh)
	p.enableMetrics = cfg.GetBool(telemetry.ConfigNameEnableMetrics)

	certFile := cfg.GetString("api.tls.certificatefile")
	privateKeyFile := cfg.GetString("api.tls.privatekey")
	if len(certFile) > 0 && len(privateKeyFile) > 0 {
		serverLogger.Debugf("Loading TLS certificate (%s) and private key (%s)", certFile, privateKeyFile)
		publicCertData, err := ioutil.ReadFile(certFile)
		if err != nil {
			p.invalidate()
			return nil, errors.Wrapf(err, "cannot read TLS server public certificate file %s", certFile)
		}
		privateKeyData, err := ioutil.ReadFile(privateKeyFile)
		if err != nil {
			p.invalidate()
			return nil, errors.Wrapf(err, "cannot read TLS server private key file %s", privateKeyFile)
		}
		rootPublicCertData := publicCertData
		if rootCertFile := cfg.GetString("api.tls.rootcertificatefile"); len(rootCertFile) > 0 {
			serverLogger.Debugf("Loading Root CA TLS certificate (%s)", rootCertFile)
			rootPublicCertData, err = ioutil.ReadFile(rootCertFile)
			if err != nil {
				p.invalidate()
				return nil, errors.Wrapf(err, "cannot read TLS server root certificate file %s", rootCertFile)
			}
		}
		p.SetTLSConfiguration(rootPublicCertData, publicCertData, privateKeyData)
	}
	return p, nil
}

// NewServerParamsFromListener returns server Params serving on lh.
func NewServerParamsFromListener(lh *ListenerHolder) *ServerParams {
	return &ServerParams{
		ServeMux: http.NewServeMux(),
		listener: lh,
	}
}

// SetTLSConfiguration configures the server to run in TLS mode.
func (p *ServerParams) SetTLSConfiguration(rootCaPublicCertificateFileData []byte, publicCertificateFileData []byte, privateKeyFileData []byte) *ServerParams {
	p.rootCaPublicCertificateFileData = rootCaPublicCertificateFileData
	if len(p.rootCaPublicCertificateFileData) == 0 {
		p.rootCaPublicCertificateFileData = publicCertificateFileData
	}
	p.publicCertificateFileData = publicCertificateFileData
	p.privateKeyFileData = privateKeyFileData
	return p
}

// AddHealthCheckFunc adds a readiness probe to the health check endpoint.
func (p *ServerParams) AddHealthCheckFunc(f func(context.Context) error) {
	p.handlersForHealthCheck = append(p.handlersForHealthCheck, f)
}

// Address returns the address the server listens on.
func (p *ServerParams) Address() string {
	return p.listener.AddrString()
}

func (p *ServerParams) usingTLS() bool {
	return len(p.publicCertificateFileData) > 0
}

// invalidate closes the TCP listener that would otherwise leak if initialization fails.
func (p *ServerParams) invalidate() {
	if err := p.listener.Close(); err != nil {
		serverLogger.Errorf("error closing http listener, %s", err)
	}
}

// Server hosts the HTTP(S) server of the advisor.
type Server struct {
	mu      sync.Mutex
	srv     *http.Server
	serving sync.WaitGroup
}

// Start begins serving in the background.
func (s *Server) Start(p *ServerParams) error {
	p.ServeMux.Handle(telemetry.HealthCheckEndpoint, telemetry.NewHealthCheck(p.handlersForHealthCheck))

	var handler http.Handler = p.ServeMux
	if p.enableMetrics {
		handler = &ochttp.Handler{Handler: handler}
	}
	srv := &http.Server{Handler: handler}

	if p.usingTLS() {
		cert, err := certificateFromFileData(p.publicCertificateFileData, p.privateKeyFileData)
		if err != nil {
			p.invalidate()
			return err
		}
		pool, err := trustedCertificateFromFileData(p.rootCaPublicCertificateFileData)
		if err != nil {
			p.invalidate()
			return err
		}
		srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*cert},
			ClientCAs:    pool,
			NextProtos:   []string{"http/1.1"},
		}
	}

	l, err := p.listener.Obtain()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.serving.Add(1)
	go func() {
		defer s.serving.Done()
		var err error
		if p.usingTLS() {
			err = srv.Serve(tls.NewListener(l, srv.TLSConfig))
		} else {
			err = srv.Serve(l)
		}
		if err != nil && err != http.ErrServerClosed {
			serverLogger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()

	serverLogger.WithFields(logrus.Fields{
		"address": l.Addr().String(),
		"tls":     p.usingTLS(),
	}).Info("Server has started.")
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	s.serving.Wait()
	serverLogger.Info("Shutting down server")
	return err
}

