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

package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/secretsync-io/secret-sync-controller/pkg/parser"
	"github.com/secretsync-io/secret-sync-controller/pkg/provider"
	"github.com/secretsync-io/secret-sync-controller/pkg/reconcile"
)

// OpKind identifies what a planned operation does.
type OpKind string

const (
	OpEnsurePresent  OpKind = "ensure-present"
	OpDisableVersion OpKind = "disable-version"
)

// Op is one planned mutation against the provider, keyed by remote name so
// publishing can run them in stable lexicographic order (spec.md §4.7).
type Op struct {
	Kind         OpKind
	Key          string
	RemoteName   string
	Value        []byte
	VersionID    string // set for OpDisableVersion
}

// DriftWarning records a remote name, currently owned, that is absent from
// the bundle — non-destructive by design (spec.md §4.7, Open Question:
// drift-detection never deletes).
type DriftWarning struct {
	RemoteName string
}

// Plan is the computed set of operations for one reconciliation.
type Plan struct {
	Ops    []Op
	Drifts []DriftWarning
}

// NamingPolicy mirrors secretsyncv1alpha1.NamingPolicy to keep this package
// independent of the API types package's import graph in tests.
type NamingPolicy struct {
	Prefix string
	Suffix string
}

// ComputePlan implements spec.md §4.7's planning stage: for each enabled
// key, read-latest and compare; for each disabled key present remotely,
// plan disable-version; for remote names not present in the bundle, record
// a drift warning when driftDetection is enabled.
func ComputePlan(ctx context.Context, bundle *parser.Bundle, naming NamingPolicy, prov provider.Provider, driftDetection bool) (Plan, error) {
	var plan Plan

	remoteToKey := map[string]string{}
	for _, e := range bundle.Entries() {
		remoteToKey[ownedRemoteName(naming.Prefix, e.Key, naming.Suffix)] = e.Key
	}

	for _, e := range bundle.Entries() {
		remoteName := ownedRemoteName(naming.Prefix, e.Key, naming.Suffix)

		latest, found, err := prov.ReadLatest(ctx, remoteName)
		if err != nil {
			return Plan{}, classifyProviderErr(err, "read-latest", remoteName)
		}

		if e.Enabled {
			if !found || string(latest.Value) != e.Value {
				plan.Ops = append(plan.Ops, Op{Kind: OpEnsurePresent, Key: e.Key, RemoteName: remoteName, Value: []byte(e.Value)})
			}
			continue
		}

		// Disabled key: if it currently exists remotely, disable its
		// latest version.
		if found {
			plan.Ops = append(plan.Ops, Op{Kind: OpDisableVersion, Key: e.Key, RemoteName: remoteName, VersionID: latest.ID})
		}
	}

	if driftDetection {
		owned, err := prov.ListOwned(ctx, naming.Prefix)
		if err != nil {
			return Plan{}, classifyProviderErr(err, "list-owned", naming.Prefix)
		}
		for _, name := range owned {
			if _, ok := remoteToKey[name]; !ok {
				plan.Drifts = append(plan.Drifts, DriftWarning{RemoteName: name})
			}
		}
	}

	sort.Slice(plan.Ops, func(i, j int) bool { return plan.Ops[i].RemoteName < plan.Ops[j].RemoteName })
	sort.Slice(plan.Drifts, func(i, j int) bool { return plan.Drifts[i].RemoteName < plan.Drifts[j].RemoteName })

	return plan, nil
}

// ownedRemoteName composes the short logical secret name the naming policy
// publishes under (spec.md §3's Owned Remote Name): prefix/suffix wrapped
// around the bundle key, with nested key segments joined by "-" (the
// remote-store-safe separator) instead of the "." the parser uses
// internally. This is the "secret" component fed into pathbuilder.Builder
// when a provider renders the remote identifier.
func ownedRemoteName(prefix, key, suffix string) string {
	sanitized := strings.ReplaceAll(key, ".", "-")
	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
	}
	b.WriteString(sanitized)
	if suffix != "" {
		b.WriteString(suffix)
	}
	return b.String()
}

func classifyProviderErr(err error, op, remoteName string) error {
	var perr *provider.Error
	if e, ok := err.(*provider.Error); ok {
		perr = e
	}
	if perr != nil && perr.Transient() {
		return reconcile.TransientInfra(op, remoteName, err)
	}
	return reconcile.UserError(op, remoteName, err)
}

// ApplyPlan executes plan's ops in their stable order (spec.md §4.7:
// "publishing executes ops in a stable order"). Already-applied ops are
// not rolled back on a later failure; ApplyPlan returns the first
// unrecoverable failure, wrapping earlier op failures via
// reconcile.MultiError for status context.
func ApplyPlan(ctx context.Context, plan Plan, prov provider.Provider) ([]Op, error) {
	var applied []Op
	var errs []error

	for _, op := range plan.Ops {
		var err error
		switch op.Kind {
		case OpEnsurePresent:
			_, _, err = prov.EnsurePresent(ctx, op.RemoteName, op.Value)
		case OpDisableVersion:
			err = prov.DisableVersion(ctx, op.RemoteName, op.VersionID)
		default:
			err = fmt.Errorf("unknown op kind %q", op.Kind)
		}

		if err != nil {
			wrapped := classifyProviderErr(err, string(op.Kind), op.RemoteName)
			if rerr := reconcile.FirstReconcileError(wrapped); rerr != nil && !rerr.Retryable() {
				errs = append(errs, wrapped)
				return applied, reconcile.MultiError(errs...)
			}
			errs = append(errs, wrapped)
			continue
		}
		applied = append(applied, op)
	}

	if len(errs) > 0 {
		return applied, reconcile.MultiError(errs...)
	}
	return applied, nil
}
