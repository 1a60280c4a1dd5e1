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

package statuswriter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	secretsyncv1alpha1 "github.com/secretsync-io/secret-sync-controller/pkg/apis/secretsync/v1alpha1"
	"github.com/secretsync-io/secret-sync-controller/pkg/engine"
	"github.com/secretsync-io/secret-sync-controller/pkg/reconcile"
)

func TestComputeSyncedStatus(t *testing.T) {
	result := engine.Result{
		Phase:              engine.PhaseSucceeded,
		ObservedGeneration: 3,
		SecretsCount:       2,
		LastSyncTime:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	got := Compute(secretsyncv1alpha1.SecretSyncStatus{}, result, nil)

	assert.Equal(t, secretsyncv1alpha1.PhaseSynced, got.Phase)
	assert.Equal(t, 2, got.SecretsCount)
	require.Len(t, got.Conditions, 1)
	assert.Equal(t, metav1.ConditionTrue, got.Conditions[0].Status)
	assert.Equal(t, ReasonSynced, got.Conditions[0].Reason)
}

func TestComputePreservesLastTransitionTimeWhenUnchanged(t *testing.T) {
	fixed := metav1.NewTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	prev := secretsyncv1alpha1.SecretSyncStatus{
		Conditions: []metav1.Condition{
			{Type: ConditionReady, Status: metav1.ConditionTrue, Reason: ReasonSynced, Message: "reconciliation succeeded", LastTransitionTime: fixed},
		},
	}
	result := engine.Result{Phase: engine.PhaseSucceeded, SecretsCount: 2}

	got := Compute(prev, result, nil)

	require.Len(t, got.Conditions, 1)
	assert.Equal(t, fixed, got.Conditions[0].LastTransitionTime)
}

func TestComputeFailedStatusClassifiesUserError(t *testing.T) {
	result := engine.Result{Phase: engine.PhaseFailed, Err: reconcile.UserError("bad-spec", "", nil)}

	got := Compute(secretsyncv1alpha1.SecretSyncStatus{}, result, nil)

	assert.Equal(t, secretsyncv1alpha1.PhaseError, got.Phase)
	require.Len(t, got.Conditions, 1)
	assert.Equal(t, ReasonUserError, got.Conditions[0].Reason)
}

func TestComputeWithholdsReadyFalseUntilFlappingThresholdExceeded(t *testing.T) {
	result := engine.Result{
		Phase:        engine.PhaseFailed,
		Err:          reconcile.TransientInfra("source-not-ready", "", nil),
		FailureCount: reconcile.FlappingThreshold,
	}

	got := Compute(secretsyncv1alpha1.SecretSyncStatus{}, result, nil)

	require.Len(t, got.Conditions, 1)
	assert.Equal(t, metav1.ConditionUnknown, got.Conditions[0].Status)
}

func TestComputeSurfacesReadyFalseAfterFlappingThresholdExceeded(t *testing.T) {
	result := engine.Result{
		Phase:        engine.PhaseFailed,
		Err:          reconcile.TransientInfra("source-not-ready", "", nil),
		FailureCount: reconcile.FlappingThreshold + 1,
	}

	got := Compute(secretsyncv1alpha1.SecretSyncStatus{}, result, nil)

	require.Len(t, got.Conditions, 1)
	assert.Equal(t, metav1.ConditionFalse, got.Conditions[0].Status)
	assert.Equal(t, ReasonTransientInfra, got.Conditions[0].Reason)
}

func TestEqualsIgnoresSubSecondTimestampJitter(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := secretsyncv1alpha1.SecretSyncStatus{LastSyncTime: timePtr(base)}
	b := secretsyncv1alpha1.SecretSyncStatus{LastSyncTime: timePtr(base.Add(400 * time.Millisecond))}

	assert.True(t, Equals(a, b))
}

func TestEqualsDetectsPhaseChange(t *testing.T) {
	a := secretsyncv1alpha1.SecretSyncStatus{Phase: secretsyncv1alpha1.PhaseSynced}
	b := secretsyncv1alpha1.SecretSyncStatus{Phase: secretsyncv1alpha1.PhaseError}

	assert.False(t, Equals(a, b))
}

func timePtr(t time.Time) *metav1.Time {
	mt := metav1.NewTime(t)
	return &mt
}
