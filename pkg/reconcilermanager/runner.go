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

package reconcilermanager

import (
	"context"
	"strings"
	"sync"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"

	secretsyncv1alpha1 "github.com/secretsync-io/secret-sync-controller/pkg/apis/secretsync/v1alpha1"
	"github.com/secretsync-io/secret-sync-controller/pkg/engine"
	"github.com/secretsync-io/secret-sync-controller/pkg/metrics"
	"github.com/secretsync-io/secret-sync-controller/pkg/notify"
	"github.com/secretsync-io/secret-sync-controller/pkg/reconcile"
	"github.com/secretsync-io/secret-sync-controller/pkg/scheduler"
	"github.com/secretsync-io/secret-sync-controller/pkg/statuswriter"
)

// Runner adapts one shared engine.Engine into a scheduler.ReconcileFunc,
// supplying the two things the engine itself is deliberately kept
// ignorant of (spec.md §9): per-MC state carried across ticks, and the
// Kubernetes object the MC spec/status lives on. Grounded on the
// teacher's cmd/reconciler/reconciler.go, which plays the same role
// between its fixed publishers and the single Run loop they feed.
type Runner struct {
	Client client.Client
	Engine *engine.Engine
	Status *statuswriter.Writer
	Notify *notify.Notifier

	mu     sync.Mutex
	states map[string]*engine.State
}

// NewRunner returns a Runner ready to be passed to scheduler.New as a
// ReconcileFunc.
func NewRunner(c client.Client, eng *engine.Engine, status *statuswriter.Writer, n *notify.Notifier) *Runner {
	return &Runner{
		Client: c,
		Engine: eng,
		Status: status,
		Notify: n,
		states: map[string]*engine.State{},
	}
}

func (r *Runner) stateFor(mcKey string) *engine.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[mcKey]
	if !ok {
		st = engine.NewState()
		r.states[mcKey] = st
	}
	return st
}

// ShouldForceReconcile reports whether mcKey's carried state has not yet
// consumed spec's current reconcile-now token, satisfying
// controllers.ForceChecker.
func (r *Runner) ShouldForceReconcile(mcKey string, spec secretsyncv1alpha1.SecretSyncSpec) bool {
	return r.stateFor(mcKey).ShouldForceReconcile(spec)
}

func (r *Runner) forgetState(mcKey string) {
	r.mu.Lock()
	delete(r.states, mcKey)
	r.mu.Unlock()
}

// Reconcile implements scheduler.ReconcileFunc. It loads the MC named by
// mcKey, runs one engine tick against that MC's carried State, writes the
// resulting status, emits a best-effort notification, and reports an
// Outcome the scheduler uses to compute the next due time.
func (r *Runner) Reconcile(ctx context.Context, mcKey string) scheduler.Outcome {
	start := time.Now()
	namespace, name, ok := splitMCKey(mcKey)
	if !ok {
		klog.Errorf("malformed MC key %q", mcKey)
		return scheduler.Outcome{}
	}

	var mc secretsyncv1alpha1.SecretSync
	if err := r.Client.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, &mc); err != nil {
		if apierrors.IsNotFound(err) {
			r.forgetState(mcKey)
			return scheduler.Outcome{}
		}
		klog.Errorf("getting SecretSync %s: %v", mcKey, err)
		return scheduler.Outcome{RetryableFailure: true}
	}

	st := r.stateFor(mcKey)
	keys := KeyLoader{Client: r.Client, Namespace: namespace}
	eng := *r.Engine
	eng.Keys = keys

	result := eng.Reconcile(ctx, mcKey, &mc, st)
	metrics.RecordPhaseDuration(string(result.Phase), time.Since(start).Seconds())

	rerr := reconcile.FirstReconcileError(result.Err)
	failureKind := ""
	retryable := false
	if rerr != nil {
		failureKind = string(rerr.Kind)
		retryable = rerr.Retryable()
	}
	metrics.RecordReconcileResult(string(result.Phase), failureKind)

	var nextPtr *time.Time
	if !retryable {
		next := time.Now().Add(time.Duration(mc.Spec.Timing.ReconcileIntervalSeconds) * time.Second)
		nextPtr = &next
	}

	if changed, err := r.Status.Write(ctx, &mc, result, nextPtr); err != nil {
		klog.Errorf("writing status for %s: %v", mcKey, err)
		metrics.RecordStatusWrite("error")
	} else if changed {
		metrics.RecordStatusWrite("written")
	} else {
		metrics.RecordStatusWrite("skipped")
	}

	status := notify.StatusSucceeded
	errMsg := ""
	if result.Err != nil {
		status = notify.StatusFailed
		errMsg = result.Err.Error()
	}
	if err := r.Notify.Publish(ctx, notify.Event{
		MCKey:        mcKey,
		Phase:        string(result.Phase),
		SecretsCount: result.SecretsCount,
		Status:       status,
		Error:        errMsg,
	}); err != nil {
		klog.Warningf("publishing notification for %s: %v", mcKey, err)
	}

	return scheduler.Outcome{
		RetryableFailure: retryable,
		NextInterval:     time.Duration(mc.Spec.Timing.ReconcileIntervalSeconds) * time.Second,
	}
}

func splitMCKey(mcKey string) (namespace, name string, ok bool) {
	parts := strings.SplitN(mcKey, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
