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
	"fmt"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// ListenerHolder holds an opened port that can only be handed off to 1 go routine.
type ListenerHolder struct {
	number   int
	listener net.Listener
	addr     string
	sync.Mutex
}

// Obtain returns the TCP listener. This method can only be called once and is thread-safe.
func (lh *ListenerHolder) Obtain() (net.Listener, error) {
	lh.Lock()
	defer lh.Unlock()
	listener := lh.listener
	lh.listener = nil
	if listener == nil {
		return nil, errors.Errorf("cannot Obtain() listener for %d because already handed off", lh.number)
	}
	return listener, nil
}

// Number returns the port number.
func (lh *ListenerHolder) Number() int {
	return lh.number
}

// AddrString returns the address of the serving port.
func (lh *ListenerHolder) AddrString() string {
	return lh.addr
}

// Close closes the TCP listener if it was not handed off.
func (lh *ListenerHolder) Close() error {
	lh.Lock()
	defer lh.Unlock()
	if lh.listener != nil {
		err := lh.listener.Close()
		lh.listener = nil
		return err
	}
	return nil
}

// NewListenerHolder opens a TCP listener on port with listen. Port 0 picks a
// free port on localhost and is meant for tests.
func NewListenerHolder(port int, listen func(network, address string) (net.Listener, error)) (*ListenerHolder, error) {
	addr := fmt.Sprintf(":%d", port)
	if port == 0 {
		addr = "localhost:0"
	}
	conn, err := listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot listen on %s", addr)
	}

	tcpAddr, ok := conn.Addr().(*net.TCPAddr)
	if !ok || tcpAddr == nil {
		conn.Close()
		return nil, errors.Errorf("listening on %s did not return a *net.TCPAddr", addr)
	}

	return &ListenerHolder{
		number:   tcpAddr.Port,
		listener: conn,
		addr:     conn.Addr().String(),
	}, nil
}

// MustListen opens a listener on a free port, used in tests to make them isolated.
func MustListen() *ListenerHolder {
	lh, err := NewListenerHolder(0, net.Listen)
	if err != nil {
		panic(err)
	}
	return lh
}
