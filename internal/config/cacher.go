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

package config

import (
	"sync"
	"time"
)

// Cacher holds a value derived from the configuration and rebuilds it when
// any of the keys read while building it changes.
type Cacher[T any] struct {
	cfg   View
	build func(cfg View) (T, error)

	m sync.Mutex
	r *rememberingView
	v T
}

// NewCacher returns a Cacher deriving its value from cfg with build.
func NewCacher[T any](cfg View, build func(cfg View) (T, error)) *Cacher[T] {
	return &Cacher[T]{
		cfg:   cfg,
		build: build,
	}
}

// Get returns the cached value, rebuilding it first if the configuration
// changed since the last build. A failed build is not cached.
func (c *Cacher[T]) Get() (T, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if c.r == nil || c.r.hasChanges() {
		r := newRememberingView(c.cfg)
		v, err := c.build(r)
		if err != nil {
			c.r = nil
			var zero T
			c.v = zero
			return zero, err
		}
		c.r, c.v = r, v
	}

	return c.v, nil
}

// ForceReset drops the cached value.
func (c *Cacher[T]) ForceReset() {
	c.m.Lock()
	defer c.m.Unlock()
	var zero T
	c.r = nil
	c.v = zero
}

// rememberingView records every value read through it, so that a later
// comparison against the live configuration can tell whether it changed.
type rememberingView struct {
	cfg  View
	seen map[string]func() bool
	mu   sync.Mutex
}

func newRememberingView(cfg View) *rememberingView {
	return &rememberingView{
		cfg:  cfg,
		seen: make(map[string]func() bool),
	}
}

func (r *rememberingView) remember(kind, k string, same func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[kind+":"+k] = same
}

func (r *rememberingView) IsSet(k string) bool {
	v := r.cfg.IsSet(k)
	r.remember("isSet", k, func() bool { return r.cfg.IsSet(k) == v })
	return v
}

func (r *rememberingView) GetString(k string) string {
	v := r.cfg.GetString(k)
	r.remember("string", k, func() bool { return r.cfg.GetString(k) == v })
	return v
}

func (r *rememberingView) GetInt(k string) int {
	v := r.cfg.GetInt(k)
	r.remember("int", k, func() bool { return r.cfg.GetInt(k) == v })
	return v
}

func (r *rememberingView) GetInt64(k string) int64 {
	v := r.cfg.GetInt64(k)
	r.remember("int64", k, func() bool { return r.cfg.GetInt64(k) == v })
	return v
}

func (r *rememberingView) GetFloat64(k string) float64 {
	v := r.cfg.GetFloat64(k)
	r.remember("float64", k, func() bool { return r.cfg.GetFloat64(k) == v })
	return v
}

func (r *rememberingView) GetStringSlice(k string) []string {
	v := r.cfg.GetStringSlice(k)
	r.remember("stringSlice", k, func() bool {
		actual := r.cfg.GetStringSlice(k)
		if len(actual) != len(v) {
			return false
		}
		for i := range v {
			if v[i] != actual[i] {
				return false
			}
		}
		return true
	})
	return v
}

func (r *rememberingView) GetBool(k string) bool {
	v := r.cfg.GetBool(k)
	r.remember("bool", k, func() bool { return r.cfg.GetBool(k) == v })
	return v
}

func (r *rememberingView) GetDuration(k string) time.Duration {
	v := r.cfg.GetDuration(k)
	r.remember("duration", k, func() bool { return r.cfg.GetDuration(k) == v })
	return v
}

func (r *rememberingView) hasChanges() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, same := range r.seen {
		if !same() {
			return true
		}
	}
	return false
}
