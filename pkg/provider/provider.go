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

// Package provider defines the capability set the reconciliation engine
// uses to talk to a remote secret store, independent of which cloud family
// backs it (spec.md §4.6). The engine only ever sees this interface.
package provider

import (
	"context"
	"time"
)

// DefaultCallTimeout bounds a single provider call attempt.
const DefaultCallTimeout = 30 * time.Second

// DefaultMaxAttempts is the number of attempts made for a transient failure
// before it propagates.
const DefaultMaxAttempts = 3

// ErrorKind classifies why a provider call failed.
type ErrorKind string

const (
	ErrAuth      ErrorKind = "auth"
	ErrNetwork   ErrorKind = "network"
	ErrNotFound  ErrorKind = "not-found"
	ErrQuota     ErrorKind = "quota"
	ErrThrottled ErrorKind = "throttled"
)

// Error wraps a provider failure with its classification. Network and
// throttled kinds are retried by Retry; the rest propagate immediately.
type Error struct {
	Kind  ErrorKind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Transient reports whether this error kind should be retried.
func (e *Error) Transient() bool {
	return e.Kind == ErrNetwork || e.Kind == ErrThrottled
}

// Version identifies one version of a remote secret value.
type Version struct {
	ID    string
	Value []byte
}

// Provider is the capability set every remote secret store family
// implements (spec.md §4.6's four operations).
type Provider interface {
	// ListOwned returns the set of remote names with the given prefix.
	ListOwned(ctx context.Context, prefix string) ([]string, error)
	// ReadLatest returns the latest version of name, or ok=false if it
	// does not exist.
	ReadLatest(ctx context.Context, name string) (version Version, ok bool, err error)
	// EnsurePresent creates a new version of name if value differs
	// byte-for-byte from the current latest version (read via ReadLatest);
	// wasNew reports whether a new version was created.
	EnsurePresent(ctx context.Context, name string, value []byte) (versionID string, wasNew bool, err error)
	// DisableVersion disables versionID of name. Idempotent.
	DisableVersion(ctx context.Context, name, versionID string) error
}
