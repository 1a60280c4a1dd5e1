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

// Package engine implements the per-MC reconciliation state machine
// (spec.md §4.7): idle -> fetching -> parsing -> decrypting -> planning ->
// publishing -> succeeded|failed -> waiting -> idle. Adapted from the
// teacher's pkg/parse/run.go reconcilerState shape: state carried across
// ticks, status fields set only when they differ, a Clock abstraction in
// place of time.Now so tests can fake time.
package engine

import (
	"fmt"

	secretsyncv1alpha1 "github.com/secretsync-io/secret-sync-controller/pkg/apis/secretsync/v1alpha1"
)

// Phase is one state of the per-MC state machine.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseFetching    Phase = "fetching"
	PhaseParsing     Phase = "parsing"
	PhaseDecrypting  Phase = "decrypting"
	PhasePlanning    Phase = "planning"
	PhasePublishing  Phase = "publishing"
	PhaseSucceeded   Phase = "succeeded"
	PhaseFailed      Phase = "failed"
	PhaseWaiting     Phase = "waiting"
	PhaseSuspended   Phase = "suspended"
)

// State is carried across ticks for one MC. A new State is created the
// first time an MC is reconciled; it is never shared across MCs.
type State struct {
	Phase Phase

	// ObservedGeneration is the spec generation this run is reconciling
	// against. Re-entry guarantee (spec.md §4.7): an in-flight run
	// completes against the snapshot it started with even if the MC is
	// updated mid-run; the new generation is only picked up on the next
	// idle tick.
	ObservedGeneration int64

	// LastReconcileNowToken is the most recently consumed value of the
	// reconcile-now annotation; an unchanged token must not retrigger a
	// tick (spec.md §4.7).
	LastReconcileNowToken string

	FailureCount int

	LastError error

	// LastArtifactDir is the extraction directory from the most recent
	// successful fetch, reused when git-pulls-suspended is set (spec.md
	// §4.7) instead of resolving and acquiring a new revision.
	LastArtifactDir string

	// LastRevision is the source revision of the most recent successful
	// fetch. Carried across ticks so the git-pulls-suspended path, which
	// skips fetch entirely, can still attach a source-revision attribute to
	// the spans it starts for the stages downstream of fetch.
	LastRevision string
}

// NewState returns a fresh State in PhaseIdle.
func NewState() *State {
	return &State{Phase: PhaseIdle}
}

// ShouldForceReconcile reports whether spec's reconcile-now annotation has
// advanced past the last token this State consumed.
func (s *State) ShouldForceReconcile(spec secretsyncv1alpha1.SecretSyncSpec) bool {
	token := spec.Annotations.ReconcileNow
	return token != "" && token != s.LastReconcileNowToken
}

// Tick names one unit of work for an MC: its key and the spec snapshot the
// work runs against. It carries no transition logic of its own; state
// transitions happen in Engine.Reconcile.
type Tick struct {
	MCKey string
	Spec  secretsyncv1alpha1.SecretSyncSpec
}

func (t Tick) String() string {
	return fmt.Sprintf("tick(%s)", t.MCKey)
}
