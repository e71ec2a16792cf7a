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

// Package appmain contains the common application initialization code for
// advisor servers.
package appmain

import (
	"context"
	"net"
	"net/http"
	"sync"

	"automl.dev/advisor/internal/config"
	"automl.dev/advisor/internal/logging"
	"automl.dev/advisor/internal/rpc"
	"automl.dev/advisor/internal/signal"
	"automl.dev/advisor/internal/telemetry"
	"automl.dev/advisor/internal/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	logger = logrus.WithFields(logrus.Fields{
		"app":       "advisor",
		"component": "app.main",
	})
)

// RunApplication starts the application and runs it until SIGINT or SIGTERM,
// or until one of its background tasks fails. For use in main functions.
func RunApplication(serverName string, getCfg func() (config.View, error), bindService Bind) {
	ctx, cancel := signal.WithCancel(context.Background())
	defer cancel()

	a, err := StartApplication(serverName, bindService, getCfg, net.Listen)
	if err != nil {
		logger.Fatal(err)
	}

	select {
	case <-ctx.Done():
	case <-a.Failed():
	}
	err = a.Stop()
	if err != nil {
		logger.Fatal(err)
	}
	logger.Info("Application stopped successfully.")
}

// Bind is a function which starts an application, and binds it to serving.
type Bind func(p *Params, b *Bindings) error

// Params are inputs to starting an application.
type Params struct {
	config      config.View
	serviceName string
}

// Config provides the configuration for the application.
func (p *Params) Config() config.View {
	return p.config
}

// ServiceName is the name of the server.
func (p *Params) ServiceName() string {
	return p.serviceName
}

// Bindings allows applications to bind various functions to the running servers.
type Bindings struct {
	sp *rpc.ServerParams
	a  *App
}

// AddHealthCheckFunc allows an application to check if it is healthy, and
// contribute to the overall server health.
func (b *Bindings) AddHealthCheckFunc(f func(context.Context) error) {
	b.sp.AddHealthCheckFunc(f)
}

// HandleFunc registers an application endpoint.
func (b *Bindings) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	b.sp.ServeMux.HandleFunc(pattern, handler)
}

// TelemetryHandle registers an operator endpoint.
func (b *Bindings) TelemetryHandle(pattern string, handler http.Handler) {
	b.sp.ServeMux.Handle(pattern, handler)
}

// TelemetryHandleFunc registers an operator endpoint.
func (b *Bindings) TelemetryHandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	b.sp.ServeMux.HandleFunc(pattern, handler)
}

// AddCloser registers c to run when the application stops.
func (b *Bindings) AddCloser(c func()) {
	b.a.closers.AddCloseFunc(c)
}

// AddCloserErr registers c to run when the application stops.
func (b *Bindings) AddCloserErr(c func() error) {
	b.a.closers.AddCloseWithErrorFunc(c)
}

// Background runs f in its own goroutine until the application stops. The
// context passed to f is cancelled by Stop, which waits for f to return. A
// non-nil error returned by f stops the application.
func (b *Bindings) Background(f func(ctx context.Context) error) {
	b.a.wg.Add(1)
	go func() {
		defer b.a.wg.Done()
		if err := f(b.a.ctx); err != nil {
			b.a.fail(err)
		}
	}()
}

// App is a running application.
type App struct {
	closers *util.MultiClose
	address string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	failOnce sync.Once
	failed   chan struct{}
	failErr  error
}

// StartApplication provides more control over an application than
// RunApplication.  It is for running in memory tests against your app.
func StartApplication(serverName string, bindService Bind, getCfg func() (config.View, error), listen func(network, address string) (net.Listener, error)) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		closers: util.NewMultiClose(),
		ctx:     ctx,
		cancel:  cancel,
		failed:  make(chan struct{}),
	}

	cfg, err := getCfg()
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "cannot read configuration")
	}
	logging.ConfigureLogging(cfg)
	sp, err := rpc.NewServerParamsFromConfig(cfg, "api."+serverName, listen)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "cannot construct server")
	}

	p := &Params{
		config:      cfg,
		serviceName: serverName,
	}
	b := &Bindings{
		a:  a,
		sp: sp,
	}

	err = telemetry.Setup(p, b)
	if err != nil {
		a.Stop()
		return nil, err
	}

	err = bindService(p, b)
	if err != nil {
		a.Stop()
		return nil, err
	}

	s := &rpc.Server{}
	err = s.Start(sp)
	if err != nil {
		a.Stop()
		return nil, err
	}
	b.AddCloserErr(s.Stop)
	a.address = sp.Address()

	return a, nil
}

// Address is the host:port the application serves on.
func (a *App) Address() string {
	return a.address
}

// Failed is closed when a background task of the application fails.
func (a *App) Failed() <-chan struct{} {
	return a.failed
}

func (a *App) fail(err error) {
	a.failOnce.Do(func() {
		logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Error("background task failed, stopping application")
		a.failErr = err
		close(a.failed)
	})
}

// Stop cancels the background tasks, waits for them, then runs the closers
// in reverse order of registration. It returns the error of a failed
// background task, if any, or else the first closer error.
func (a *App) Stop() error {
	a.cancel()
	a.wg.Wait()
	err := a.closers.Close()

	select {
	case <-a.failed:
		return a.failErr
	default:
	}
	return err
}
