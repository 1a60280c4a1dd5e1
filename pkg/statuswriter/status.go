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

// Package statuswriter computes the desired SecretSync.Status for a
// reconciliation result and writes it with a compare-and-set, skipping the
// API call entirely when nothing observable changed (spec.md §4.9).
// Generalized from the teacher's pkg/parse/status.go needToSet*/Equals
// pattern, collapsed from three pipeline-stage statuses down to the single
// status this engine owns.
package statuswriter

import (
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	secretsyncv1alpha1 "github.com/secretsync-io/secret-sync-controller/pkg/apis/secretsync/v1alpha1"
	"github.com/secretsync-io/secret-sync-controller/pkg/engine"
	"github.com/secretsync-io/secret-sync-controller/pkg/reconcile"
)

// ignoreTransitionTime mirrors the teacher's compare.IgnoreTimestampUpdates:
// LastTransitionTime is expected to change on every reconcile and carries no
// observable meaning of its own, so condition equality ignores it.
var ignoreTransitionTime = cmpopts.IgnoreFields(metav1.Condition{}, "LastTransitionTime")

const (
	ConditionReady = "Ready"

	ReasonSynced        = "Synced"
	ReasonUserError     = "UserError"
	ReasonTransientInfra = "TransientInfra"
	ReasonInternalError = "InternalError"
	ReasonSuspended     = "Suspended"
)

// Compute builds the desired status from one reconciliation Result. The
// caller supplies the previous status so conditions can be merged and
// next-scheduled-reconcile carried forward by the scheduler.
func Compute(prev secretsyncv1alpha1.SecretSyncStatus, result engine.Result, nextScheduledReconcile *time.Time) secretsyncv1alpha1.SecretSyncStatus {
	desired := secretsyncv1alpha1.SecretSyncStatus{
		ObservedGeneration: result.ObservedGeneration,
		SecretsCount:       result.SecretsCount,
	}

	switch result.Phase {
	case engine.PhaseSuspended:
		desired.Phase = secretsyncv1alpha1.PhaseSuspended
		desired.Description = "reconciliation suspended"
	case engine.PhaseSucceeded, engine.PhaseWaiting:
		desired.Phase = secretsyncv1alpha1.PhaseSynced
		desired.Description = fmt.Sprintf("synced %d secrets", result.SecretsCount)
	case engine.PhaseFailed:
		desired.Phase = secretsyncv1alpha1.PhaseError
		desired.Description = result.Err.Error()
	default:
		desired.Phase = secretsyncv1alpha1.PhaseSyncing
	}

	if !result.LastSyncTime.IsZero() {
		t := metav1.NewTime(result.LastSyncTime)
		desired.LastSyncTime = &t
	} else {
		desired.LastSyncTime = prev.LastSyncTime
	}

	if nextScheduledReconcile != nil {
		t := metav1.NewTime(*nextScheduledReconcile)
		desired.NextScheduledReconcile = &t
	}

	newCondition := readyCondition(result)
	desired.Conditions = mergeConditions(prev.Conditions, []metav1.Condition{newCondition})

	return desired
}

func readyCondition(result engine.Result) metav1.Condition {
	switch result.Phase {
	case engine.PhaseSuspended:
		return metav1.Condition{Type: ConditionReady, Status: metav1.ConditionFalse, Reason: ReasonSuspended, Message: "suspended by annotation"}
	case engine.PhaseSucceeded, engine.PhaseWaiting:
		return metav1.Condition{Type: ConditionReady, Status: metav1.ConditionTrue, Reason: ReasonSynced, Message: "reconciliation succeeded"}
	case engine.PhaseFailed:
		rerr := reconcile.FirstReconcileError(result.Err)
		if !flappingThresholdExceeded(rerr, result.FailureCount) {
			return metav1.Condition{Type: ConditionReady, Status: metav1.ConditionUnknown, Reason: "Retrying", Message: retryMessage(rerr, result.Err)}
		}
		reason, msg := classifyFailure(rerr, result.Err)
		return metav1.Condition{Type: ConditionReady, Status: metav1.ConditionFalse, Reason: reason, Message: msg}
	default:
		return metav1.Condition{Type: ConditionReady, Status: metav1.ConditionUnknown, Reason: "Reconciling", Message: "reconciliation in progress"}
	}
}

// flappingThresholdExceeded reports whether a failing MC has retried enough
// that the failure should stop being treated as transient and surface as
// Ready=False (spec.md §7): transient-infra tolerates
// reconcile.FlappingThreshold consecutive failures, corrupt-artifact
// tolerates reconcile.CorruptArtifactMaxRetries, and every other kind
// surfaces immediately.
func flappingThresholdExceeded(rerr *reconcile.Error, failureCount int) bool {
	if rerr == nil {
		return true
	}
	switch rerr.Kind {
	case reconcile.KindTransientInfra:
		return failureCount > reconcile.FlappingThreshold
	case reconcile.KindCorruptArtifact:
		return failureCount > reconcile.CorruptArtifactMaxRetries
	default:
		return true
	}
}

func retryMessage(rerr *reconcile.Error, err error) string {
	if rerr == nil {
		return err.Error()
	}
	return fmt.Sprintf("retrying after failure: %s", rerr.Error())
}

func classifyFailure(rerr *reconcile.Error, err error) (reason, message string) {
	if rerr == nil {
		return ReasonInternalError, err.Error()
	}
	switch rerr.Kind {
	case reconcile.KindUserError:
		return ReasonUserError, rerr.Error()
	case reconcile.KindTransientInfra:
		return ReasonTransientInfra, rerr.Error()
	case reconcile.KindCorruptArtifact:
		return ReasonTransientInfra, rerr.Error()
	default:
		return ReasonInternalError, rerr.Error()
	}
}

// mergeConditions layers updates onto existing, preserving LastTransitionTime
// for any condition whose (status, reason, message) triple is unchanged
// (spec.md §4.9). A changed triple gets a fresh LastTransitionTime stamped
// by Writer from its Clock, since Compute and mergeConditions do not call
// time.Now.
func mergeConditions(existing, updates []metav1.Condition) []metav1.Condition {
	byType := map[string]metav1.Condition{}
	var order []string
	for _, c := range existing {
		byType[c.Type] = c
		order = append(order, c.Type)
	}
	for _, u := range updates {
		old, had := byType[u.Type]
		if had && old.Status == u.Status && old.Reason == u.Reason && old.Message == u.Message {
			u.LastTransitionTime = old.LastTransitionTime
		}
		if !had {
			order = append(order, u.Type)
		}
		byType[u.Type] = u
	}

	merged := make([]metav1.Condition, 0, len(order))
	for _, t := range order {
		merged = append(merged, byType[t])
	}
	return merged
}

// Equals reports whether two statuses are observably identical: the fields
// the orchestrator and operators actually look at, ignoring sub-second
// timestamp jitter (spec.md §4.9: "compare-and-set ... over observed
// generation, phase, conditions, counters, timestamps truncated to the
// second").
func Equals(a, b secretsyncv1alpha1.SecretSyncStatus) bool {
	if a.ObservedGeneration != b.ObservedGeneration ||
		a.Phase != b.Phase ||
		a.Description != b.Description ||
		a.SecretsCount != b.SecretsCount {
		return false
	}
	if !timeEqualToSecond(a.LastSyncTime, b.LastSyncTime) {
		return false
	}
	if !timeEqualToSecond(a.NextScheduledReconcile, b.NextScheduledReconcile) {
		return false
	}
	return conditionsEqual(a.Conditions, b.Conditions)
}

func timeEqualToSecond(a, b *metav1.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Time.Truncate(time.Second).Equal(b.Time.Truncate(time.Second))
}

func conditionsEqual(a, b []metav1.Condition) bool {
	return cmp.Equal(a, b, ignoreTransitionTime)
}
