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

// Package controllers watches SecretSync objects and drives the scheduler
// that feeds the reconciliation engine (spec.md §9). Adapted from
// reposync_controller.go's watch/validate shape: the teacher's
// RepoSyncReconciler.Reconcile provisions a reconciler Deployment, service
// account, RBAC and secrets for an out-of-process pod per RepoSync. This
// system runs all reconciliation in one process (spec.md §9, "one active
// reconciler per cluster"), so none of that provisioning logic applies;
// what's kept is the watch-get-validate shape and the Register/
// SetupWithManager wiring.
package controllers

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	secretsyncv1alpha1 "github.com/secretsync-io/secret-sync-controller/pkg/apis/secretsync/v1alpha1"
)

// MinPullInterval and MinReconcileInterval are spec.md §3's normative
// minima; a spec below either is clamped up and reported as a warning
// rather than rejected.
const (
	MinPullInterval      = 60 * time.Second
	MinReconcileInterval = 30 * time.Second
)

// Scheduler is the subset of *scheduler.Scheduler this controller drives.
// Narrowed to an interface so the controller can be unit tested without a
// real delay-queue/worker-pool.
type Scheduler interface {
	Schedule(mcKey string, delay time.Duration)
	Cancel(mcKey string)
}

// ForceChecker reports whether an MC's reconcile-now annotation has
// advanced past the token its engine state last consumed. Satisfied by
// *reconcilermanager.Runner, which owns the per-MC engine.State.
type ForceChecker interface {
	ShouldForceReconcile(mcKey string, spec secretsyncv1alpha1.SecretSyncSpec) bool
}

// SecretSyncReconciler reconciles SecretSync objects by validating their
// spec and handing them to the Scheduler. It does no reconciliation work
// itself; that happens in the Scheduler's worker pool against
// engine.Engine.
type SecretSyncReconciler struct {
	Client    client.Client
	Scheduler Scheduler
	Force     ForceChecker
}

// NewSecretSyncReconciler returns a SecretSyncReconciler.
func NewSecretSyncReconciler(c client.Client, s Scheduler, f ForceChecker) *SecretSyncReconciler {
	return &SecretSyncReconciler{Client: c, Scheduler: s, Force: f}
}

// Reconcile implements reconcile.Reconciler.
func (r *SecretSyncReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	mcKey := req.NamespacedName.String()

	var mc secretsyncv1alpha1.SecretSync
	if err := r.Client.Get(ctx, req.NamespacedName, &mc); err != nil {
		if apierrors.IsNotFound(err) {
			r.Scheduler.Cancel(mcKey)
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, fmt.Errorf("getting SecretSync %s: %w", mcKey, err)
	}

	if !mc.DeletionTimestamp.IsZero() {
		r.Scheduler.Cancel(mcKey)
		return ctrl.Result{}, nil
	}

	for _, warning := range ClampTiming(&mc.Spec.Timing) {
		klog.Warningf("SecretSync %s: %s", mcKey, warning)
	}

	suspended := mc.Spec.Features.Suspended || (mc.Spec.Annotations.Suspend != nil && *mc.Spec.Annotations.Suspend)

	delay := time.Duration(mc.Spec.Timing.ReconcileIntervalSeconds) * time.Second
	if !suspended && r.Force.ShouldForceReconcile(mcKey, mc.Spec) {
		delay = 0
	}
	r.Scheduler.Schedule(mcKey, delay)

	return ctrl.Result{}, nil
}

// ClampTiming raises Timing's two interval fields to spec.md §3's minima in
// place, returning one warning string per field that was clamped.
func ClampTiming(t *secretsyncv1alpha1.Timing) []string {
	var warnings []string
	minPull := int64(MinPullInterval / time.Second)
	minReconcile := int64(MinReconcileInterval / time.Second)

	if t.PullIntervalSeconds < minPull {
		warnings = append(warnings, fmt.Sprintf(
			"pullIntervalSeconds %d is below the minimum %d; clamped", t.PullIntervalSeconds, minPull))
		t.PullIntervalSeconds = minPull
	}
	if t.ReconcileIntervalSeconds < minReconcile {
		warnings = append(warnings, fmt.Sprintf(
			"reconcileIntervalSeconds %d is below the minimum %d; clamped", t.ReconcileIntervalSeconds, minReconcile))
		t.ReconcileIntervalSeconds = minReconcile
	}
	return warnings
}

// SetupWithManager registers the controller, watching SecretSync for
// generation changes (spec updates, which include the reconcile-now and
// suspend signals carried under spec.annotations) and for metadata
// annotation changes.
func (r *SecretSyncReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&secretsyncv1alpha1.SecretSync{}, builder.WithPredicates(predicate.Or(
			predicate.GenerationChangedPredicate{},
			predicate.AnnotationChangedPredicate{},
		))).
		Complete(r)
}
