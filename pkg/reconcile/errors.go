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

// Package reconcile holds the error taxonomy every reconciliation stage
// returns (spec.md §7): kind, cause chain, and safe-to-log context. Nothing
// below the engine decides whether to retry; the engine converts a Error
// into (phase, condition, metric, log).
package reconcile

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Kind classifies a reconciliation failure (spec.md §7). These are kinds,
// not Go type names — every Error carries exactly one.
type Kind string

const (
	// KindUserError covers invalid spec, parse errors,
	// decryption-key-not-found and overlay-build-error. Surfaced
	// immediately as Ready=False/Reason=UserError; not retried with
	// backoff beyond the normal reconcile interval.
	KindUserError Kind = "user-error"
	// KindTransientInfra covers network, provider throttling, and
	// source-not-ready. Retried with exponential backoff; not reported as
	// Ready=False until failure-count exceeds FlappingThreshold.
	KindTransientInfra Kind = "transient-infra"
	// KindCorruptArtifact covers integrity or format failures. Retried a
	// small number of times (default CorruptArtifactMaxRetries), then
	// surfaced as Ready=False until the revision changes.
	KindCorruptArtifact Kind = "corrupt-artifact"
	// KindFatal covers programming errors and unreachable states. MC
	// status is updated with Ready=False/Reason=InternalError and the MC is
	// reconciled again at its normal interval; no worker panics on a fatal
	// error, and the scheduler does not recover panics.
	KindFatal Kind = "fatal"
)

// FlappingThreshold is the number of consecutive transient-infra failures
// before Ready is reported False (spec.md §7, default 3).
const FlappingThreshold = 3

// CorruptArtifactMaxRetries is the number of retries given to a
// corrupt-artifact failure before it is surfaced (spec.md §7, default 2).
const CorruptArtifactMaxRetries = 2

// Error is the structured failure every reconciliation stage returns.
// Context must never include secret values (spec.md §7).
type Error struct {
	Kind    Kind
	Reason  string // short machine-usable reason, e.g. "decryption-key-not-found"
	Context string // safe-to-log detail
	Cause   error
}

func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Reason, e.Context)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether this error kind is retried by the scheduler's
// normal backoff path (transient-infra and corrupt-artifact are;
// user-error and fatal are not — both wait for the normal reconcile
// interval instead).
func (e *Error) Retryable() bool {
	return e.Kind == KindTransientInfra || e.Kind == KindCorruptArtifact
}

// UserError builds a KindUserError Error.
func UserError(reason, context string, cause error) *Error {
	return &Error{Kind: KindUserError, Reason: reason, Context: context, Cause: cause}
}

// TransientInfra builds a KindTransientInfra Error.
func TransientInfra(reason, context string, cause error) *Error {
	return &Error{Kind: KindTransientInfra, Reason: reason, Context: context, Cause: cause}
}

// CorruptArtifact builds a KindCorruptArtifact Error.
func CorruptArtifact(reason, context string, cause error) *Error {
	return &Error{Kind: KindCorruptArtifact, Reason: reason, Context: context, Cause: cause}
}

// Fatal builds a KindFatal Error.
func Fatal(reason, context string, cause error) *Error {
	return &Error{Kind: KindFatal, Reason: reason, Context: context, Cause: cause}
}

// MultiError aggregates multiple per-op failures from the publishing stage
// (spec.md §4.7: "the state transitions to failed with the first
// unrecoverable failure" — but safe, already-logged context from every op
// attempted is retained for the status message). Generalized from the
// status.MultiError/status.Append aggregation pattern the teacher's
// pkg/parse/run.go relies on; the teacher's own status package is not part
// of the retrieved slice, so this module uses go.uber.org/multierr
// (already a teacher dependency) for the underlying aggregation.
func MultiError(errs ...error) error {
	var agg error
	for _, err := range errs {
		if err != nil {
			agg = multierr.Append(agg, err)
		}
	}
	return agg
}

// FirstReconcileError returns the first *Error found by unwrapping err (or
// via multierr's Errors()), or nil if none is found.
func FirstReconcileError(err error) *Error {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr
	}
	if subs := multierr.Errors(err); len(subs) > 1 {
		for _, sub := range subs {
			if found := FirstReconcileError(sub); found != nil {
				return found
			}
		}
	}
	return nil
}
