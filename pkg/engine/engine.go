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
	"os"
	"sort"
	"time"

	secretsyncv1alpha1 "github.com/secretsync-io/secret-sync-controller/pkg/apis/secretsync/v1alpha1"
	"github.com/secretsync-io/secret-sync-controller/pkg/artifactcache"
	"github.com/secretsync-io/secret-sync-controller/pkg/envelope"
	"github.com/secretsync-io/secret-sync-controller/pkg/overlay"
	"github.com/secretsync-io/secret-sync-controller/pkg/parser"
	"github.com/secretsync-io/secret-sync-controller/pkg/provider"
	"github.com/secretsync-io/secret-sync-controller/pkg/reconcile"
	"github.com/secretsync-io/secret-sync-controller/pkg/tracing"
)

// Clock is time.Now, abstracted so tests can fake it.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SourceResolver turns an MC's source reference into an artifact cache
// request. The engine never talks to Git or an orchestrator API directly
// (spec.md §6); this boundary is implemented by the reconciler-manager
// controller, which watches the referenced GitRepository/Application object.
type SourceResolver interface {
	Resolve(ctx context.Context, ref secretsyncv1alpha1.SourceReference) (artifactcache.Request, error)
}

// OverlayRunner builds the overlay tree at dir into secret resources.
type OverlayRunner interface {
	Build(ctx context.Context, dir string) ([]overlay.SecretResource, error)
}

// ProviderFactory constructs a provider.Provider for an MC's provider
// selector.
type ProviderFactory interface {
	New(ctx context.Context, sel secretsyncv1alpha1.ProviderSelector) (provider.Provider, error)
}

// KeyLoader resolves the decryption key material referenced by an MC's
// secrets selector.
type KeyLoader interface {
	Load(ctx context.Context, sel secretsyncv1alpha1.SecretsSelector) (envelope.Keys, error)
}

// Result is what one Reconcile call produces for the status writer.
type Result struct {
	Phase              Phase
	ObservedGeneration int64
	SecretsCount       int
	LastSyncTime       time.Time
	Applied            []Op
	Drifts             []DriftWarning
	Err                error

	// FailureCount is the carried State's consecutive-failure count after
	// this tick, 0 on success. The status writer uses it to gate Ready=False
	// behind reconcile.FlappingThreshold/CorruptArtifactMaxRetries (spec.md
	// §7) instead of surfacing on the first retryable failure.
	FailureCount int
}

// Engine drives one MC's state machine through a single tick. Adapted from
// the teacher's pkg/parse/run.go Run loop: each stage is a narrow function
// returning a *reconcile.Error on failure, and the caller (reconciler
// manager + scheduler) decides when the next tick happens.
type Engine struct {
	Cache     *artifactcache.Cache
	Sources   SourceResolver
	Overlay   OverlayRunner
	Providers ProviderFactory
	Keys      KeyLoader
	Clock     Clock

	// Tracer starts a span around each of fetch/decrypt/plan/publish
	// (spec.md §4.10). Defaults to tracing.Noop when nil, so tracing is
	// opt-in rather than required for the engine to run.
	Tracer tracing.Tracer
}

// New returns an Engine wired with the given collaborators. Clock defaults
// to the real wall clock when nil, Tracer to tracing.Noop when nil.
func New(cache *artifactcache.Cache, sources SourceResolver, ovl OverlayRunner, providers ProviderFactory, keys KeyLoader) *Engine {
	return &Engine{Cache: cache, Sources: sources, Overlay: ovl, Providers: providers, Keys: keys, Clock: realClock{}, Tracer: tracing.Noop}
}

func (e *Engine) clock() Clock {
	if e.Clock == nil {
		return realClock{}
	}
	return e.Clock
}

func (e *Engine) tracer() tracing.Tracer {
	if e.Tracer == nil {
		return tracing.Noop
	}
	return e.Tracer
}

// providerName returns the provider kind selected for spec, or "unknown" if
// none/more than one is set, purely for span attribution.
func providerName(spec secretsyncv1alpha1.SecretSyncSpec) string {
	kind, ok := spec.Provider.Kind()
	if !ok {
		return "unknown"
	}
	return string(kind)
}

// Reconcile runs one full idle->...->waiting cycle for mc, mutating st in
// place and returning the Result the status writer should record. st must
// belong to exactly one MC identity at a time (re-entry guarantee, spec.md
// §4.7): the caller is responsible for ensuring at most one goroutine calls
// Reconcile concurrently for a given mcKey.
func (e *Engine) Reconcile(ctx context.Context, mcKey string, mc *secretsyncv1alpha1.SecretSync, st *State) Result {
	spec := mc.Spec

	if spec.Annotations.ReconcileNow != "" {
		st.LastReconcileNowToken = spec.Annotations.ReconcileNow
	}

	if spec.Features.Suspended || (spec.Annotations.Suspend != nil && *spec.Annotations.Suspend) {
		st.Phase = PhaseSuspended
		return Result{Phase: PhaseSuspended, ObservedGeneration: mc.Generation}
	}

	st.ObservedGeneration = mc.Generation
	st.Phase = PhaseFetching

	var artifactDir string
	if spec.Features.GitPullsSuspended && st.LastArtifactDir != "" {
		artifactDir = st.LastArtifactDir
	} else {
		spanCtx, finish := e.tracer().StartSpan(ctx, "fetch", map[string]string{
			"mc_identity": mcKey,
			"provider":    providerName(spec),
		})
		dir, revision, err := e.fetch(spanCtx, mcKey, spec)
		finish(err)
		if err != nil {
			return e.fail(st, mc.Generation, err)
		}
		artifactDir = dir
		st.LastArtifactDir = dir
		st.LastRevision = revision
	}

	st.Phase = PhaseParsing
	bundle, err := e.parse(ctx, spec, artifactDir)
	if err != nil {
		return e.fail(st, mc.Generation, err)
	}

	st.Phase = PhaseDecrypting
	decryptCtx, finishDecrypt := e.tracer().StartSpan(ctx, "decrypt", map[string]string{
		"mc_identity":     mcKey,
		"source_revision": st.LastRevision,
	})
	decrypted, err := e.decrypt(decryptCtx, spec.Secrets, bundle)
	finishDecrypt(err)
	if err != nil {
		return e.fail(st, mc.Generation, err)
	}

	st.Phase = PhasePlanning
	prov, err := e.Providers.New(ctx, spec.Provider)
	if err != nil {
		return e.fail(st, mc.Generation, reconcile.UserError("bad-provider-selector", "", err))
	}
	naming := NamingPolicy{Prefix: spec.Naming.Prefix, Suffix: spec.Naming.Suffix}
	planCtx, finishPlan := e.tracer().StartSpan(ctx, "plan", map[string]string{
		"mc_identity":     mcKey,
		"source_revision": st.LastRevision,
		"provider":        providerName(spec),
	})
	plan, err := ComputePlan(planCtx, decrypted, naming, prov, spec.Features.DriftDetection)
	finishPlan(err)
	if err != nil {
		return e.fail(st, mc.Generation, err)
	}

	st.Phase = PhasePublishing
	publishCtx, finishPublish := e.tracer().StartSpan(ctx, "publish", map[string]string{
		"mc_identity":     mcKey,
		"source_revision": st.LastRevision,
		"provider":        providerName(spec),
	})
	applied, err := ApplyPlan(publishCtx, plan, prov)
	finishPublish(err)
	if err != nil {
		// Partial progress is retained (spec.md §4.7): applied already
		// reflects every op that succeeded before the failure.
		st.Phase = PhaseFailed
		st.FailureCount++
		st.LastError = err
		return Result{
			Phase:              PhaseFailed,
			ObservedGeneration: mc.Generation,
			SecretsCount:       enabledCount(decrypted),
			Applied:            applied,
			Drifts:             plan.Drifts,
			Err:                err,
			FailureCount:       st.FailureCount,
		}
	}

	st.Phase = PhaseSucceeded
	st.FailureCount = 0
	st.LastError = nil
	syncTime := e.clock().Now()
	result := Result{
		Phase:              PhaseSucceeded,
		ObservedGeneration: mc.Generation,
		SecretsCount:       enabledCount(decrypted),
		LastSyncTime:       syncTime,
		Applied:            applied,
		Drifts:             plan.Drifts,
	}
	st.Phase = PhaseWaiting
	return result
}

// enabledCount returns the number of bundle entries that will actually be
// published: secrets-count is a published-secret count, not a line count
// (spec.md §3), so disabled entries never contribute.
func enabledCount(b *parser.Bundle) int {
	n := 0
	for _, entry := range b.Entries() {
		if entry.Enabled {
			n++
		}
	}
	return n
}

func (e *Engine) fail(st *State, generation int64, err error) Result {
	st.Phase = PhaseFailed
	st.FailureCount++
	st.LastError = err
	return Result{Phase: PhaseFailed, ObservedGeneration: generation, Err: err, FailureCount: st.FailureCount}
}

// fetch resolves the source reference and acquires its artifact via the
// cache. Called only when there is no prior cache entry to reuse (spec.md
// §4.7's git-pulls-suspended path is handled by the caller).
func (e *Engine) fetch(ctx context.Context, mcKey string, spec secretsyncv1alpha1.SecretSyncSpec) (string, string, error) {
	req, err := e.Sources.Resolve(ctx, spec.SourceRef)
	if err != nil {
		return "", "", reconcile.TransientInfra("source-not-ready", mcKey, err)
	}
	dir, err := e.Cache.Acquire(ctx, req)
	if err != nil {
		if _, ok := err.(*artifactcache.CorruptArtifactError); ok {
			return "", "", reconcile.CorruptArtifact("artifact-integrity", mcKey, err)
		}
		return "", "", reconcile.TransientInfra("artifact-fetch-failed", mcKey, err)
	}
	return dir, req.Revision, nil
}

// parse runs the overlay builder when an overlay path is configured,
// otherwise the raw env/tree file parser, per spec.md §4.7.
func (e *Engine) parse(ctx context.Context, spec secretsyncv1alpha1.SecretSyncSpec, artifactDir string) (*parser.Bundle, error) {
	layout := newArtifactLayout(artifactDir, spec.Secrets.Environment)

	if spec.Secrets.OverlayPath != "" {
		resources, err := e.Overlay.Build(ctx, layout.overlay(spec.Secrets.OverlayPath))
		if err != nil {
			return nil, reconcile.UserError("overlay-build-error", spec.Secrets.OverlayPath, err)
		}
		return overlayResourcesToBundle(resources), nil
	}

	env, err := readBundleFile(layout.envFile("secrets"), parser.ParseEnv)
	if err != nil {
		return nil, reconcile.UserError("parse-error", layout.envFile("secrets"), err)
	}
	tree, err := readBundleFile(layout.treeFile("secrets"), parser.ParseTree)
	if err != nil {
		return nil, reconcile.UserError("parse-error", layout.treeFile("secrets"), err)
	}
	return parser.Merge(env, tree), nil
}

func readBundleFile(path string, parse func([]byte) (*parser.Bundle, error)) (*parser.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return parser.NewBundle(), nil
		}
		return nil, err
	}
	return parse(data)
}

// overlayResourcesToBundle flattens every Secret resource's data map into a
// single bundle, in a stable order (resource name, then key) so planning is
// deterministic across ticks that see identical input.
func overlayResourcesToBundle(resources []overlay.SecretResource) *parser.Bundle {
	sorted := make([]overlay.SecretResource, len(resources))
	copy(sorted, resources)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	bundle := parser.NewBundle()
	for _, res := range sorted {
		keys := make([]string, 0, len(res.Data))
		for k := range res.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			bundle.Set(k, res.Data[k], true)
		}
	}
	return bundle
}

// decrypt applies the envelope decryptor to every bundle value, passing
// plain values through unchanged (spec.md §4.3/§4.7: decryption applies to
// "every value whose metadata marks it encrypted" — values not recognized
// as ciphertext by any scheme are treated as already plain).
func (e *Engine) decrypt(ctx context.Context, sel secretsyncv1alpha1.SecretsSelector, bundle *parser.Bundle) (*parser.Bundle, error) {
	keys, err := e.Keys.Load(ctx, sel)
	if err != nil {
		return nil, reconcile.UserError("decryption-key-not-found", "", err)
	}
	d := envelope.New(keys)

	out := parser.NewBundle()
	for _, entry := range bundle.Entries() {
		plaintext, ok, err := d.Decrypt(entry.Value)
		if err != nil {
			return nil, reconcile.UserError("decryption-failed", entry.Key, err)
		}
		if !ok {
			out.Set(entry.Key, entry.Value, entry.Enabled)
			continue
		}
		out.Set(entry.Key, plaintext, entry.Enabled)
	}
	return out, nil
}
