// Copyright 2022 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runtimeconfig holds the hot-reloadable process configuration
// (spec.md §9: backoff bounds, worker count, timeouts) that sits apart
// from any single MC's spec. A SIGHUP re-reads it from the environment and
// swaps it in atomically; in-flight reconciliations keep running against
// the snapshot they started with, matching the teacher's own avoidance of
// locking around frequently-read, rarely-written config.
package runtimeconfig

import (
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/secretsync-io/secret-sync-controller/pkg/scheduler"
)

// Config is one immutable snapshot of the hot-reloadable settings.
type Config struct {
	Workers     int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	HTTPTimeout time.Duration
}

// Default returns spec.md §4.8's default Config.
func Default() Config {
	return Config{
		Workers:     scheduler.DefaultWorkers,
		MinBackoff:  scheduler.DefaultMinBackoff,
		MaxBackoff:  scheduler.DefaultMaxBackoff,
		HTTPTimeout: 30 * time.Second,
	}
}

// FromEnv overlays environment variables onto a copy of base, returning the
// result. Unset or unparsable variables leave the corresponding field
// unchanged.
func FromEnv(base Config) Config {
	cfg := base
	if v, ok := envInt("SECRETSYNC_WORKERS"); ok {
		cfg.Workers = v
	}
	if v, ok := envDuration("SECRETSYNC_MIN_BACKOFF"); ok {
		cfg.MinBackoff = v
	}
	if v, ok := envDuration("SECRETSYNC_MAX_BACKOFF"); ok {
		cfg.MaxBackoff = v
	}
	if v, ok := envDuration("SECRETSYNC_HTTP_TIMEOUT"); ok {
		cfg.HTTPTimeout = v
	}
	return cfg
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		klog.Warningf("runtimeconfig: ignoring %s=%q: %v", key, raw, err)
		return 0, false
	}
	return v, true
}

func envDuration(key string) (time.Duration, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		klog.Warningf("runtimeconfig: ignoring %s=%q: %v", key, raw, err)
		return 0, false
	}
	return v, true
}

// Store holds the current Config behind an atomic.Value so readers never
// block on a writer and never observe a torn snapshot.
type Store struct {
	v atomic.Value
}

// NewStore returns a Store seeded with initial.
func NewStore(initial Config) *Store {
	s := &Store{}
	s.v.Store(initial)
	return s
}

// Load returns the current Config.
func (s *Store) Load() Config {
	return s.v.Load().(Config)
}

// Swap replaces the current Config with next.
func (s *Store) Swap(next Config) {
	s.v.Store(next)
}

// ReloadFromEnv re-derives a Config from Default overlaid with the current
// environment and swaps it in. Intended to be called from a SIGHUP
// handler.
func (s *Store) ReloadFromEnv() {
	next := FromEnv(Default())
	s.Swap(next)
	klog.Infof("runtimeconfig: reloaded (workers=%d minBackoff=%s maxBackoff=%s)",
		next.Workers, next.MinBackoff, next.MaxBackoff)
}
