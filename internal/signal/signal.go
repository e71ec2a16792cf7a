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

// Package signal handles terminating applications on SIGINT and SIGTERM.
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// New waits for a manual termination or a user initiated termination IE: Ctrl+Break.
// waitForFunc() will wait indefinitely for a signal.
// terminateFunc() will trigger waitForFunc() to complete immediately and may
// be called more than once.
func New() (waitForFunc func(), terminateFunc func()) {
	// SIGTERM is signaled by k8s when it wants a pod to stop.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
		})
	}

	go func() {
		select {
		case <-sigs:
			stop()
		case <-done:
		}
	}()

	waitForFunc = func() {
		<-done
	}
	return waitForFunc, stop
}

// WithCancel returns a copy of parent that is cancelled on the first signal
// or when the returned function is called.
func WithCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	wait, terminate := New()
	go func() {
		wait()
		cancel()
	}()
	go func() {
		<-ctx.Done()
		terminate()
	}()
	return ctx, func() {
		terminate()
		cancel()
	}
}
