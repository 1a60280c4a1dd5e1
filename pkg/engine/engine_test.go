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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	secretsyncv1alpha1 "github.com/secretsync-io/secret-sync-controller/pkg/apis/secretsync/v1alpha1"
	"github.com/secretsync-io/secret-sync-controller/pkg/artifactcache"
	"github.com/secretsync-io/secret-sync-controller/pkg/envelope"
	"github.com/secretsync-io/secret-sync-controller/pkg/overlay"
	"github.com/secretsync-io/secret-sync-controller/pkg/provider"
)

type recordedSpan struct {
	name  string
	attrs map[string]string
	err   error
}

type recordingTracer struct {
	spans []recordedSpan
}

func (r *recordingTracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error)) {
	idx := len(r.spans)
	r.spans = append(r.spans, recordedSpan{name: name, attrs: attrs})
	return ctx, func(err error) { r.spans[idx].err = err }
}

type refusingSourceResolver struct{ t *testing.T }

func (r refusingSourceResolver) Resolve(ctx context.Context, ref secretsyncv1alpha1.SourceReference) (artifactcache.Request, error) {
	r.t.Fatal("Resolve should not be called when reusing the last cache entry")
	return artifactcache.Request{}, nil
}

type staticProviderFactory struct{ prov provider.Provider }

func (f staticProviderFactory) New(ctx context.Context, sel secretsyncv1alpha1.ProviderSelector) (provider.Provider, error) {
	return f.prov, nil
}

type plainKeyLoader struct{}

func (plainKeyLoader) Load(ctx context.Context, sel secretsyncv1alpha1.SecretsSelector) (envelope.Keys, error) {
	return envelope.Keys{}, nil
}

type noOverlay struct{}

func (noOverlay) Build(ctx context.Context, dir string) ([]overlay.SecretResource, error) {
	return nil, errors.New("overlay should not run when overlay path is unset")
}

func writeSecretsFile(t *testing.T, root, environment string, content string) {
	t.Helper()
	dir := filepath.Join(root, environment)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secrets.env"), []byte(content), 0o644))
}

func TestReconcileFirstSyncSucceeds(t *testing.T) {
	root := t.TempDir()
	writeSecretsFile(t, root, "prod", "API_KEY=k1\nDB_PW=k2\n")

	prov := newFakeProvider()
	eng := &Engine{
		Sources:   refusingSourceResolver{t: t},
		Overlay:   noOverlay{},
		Providers: staticProviderFactory{prov: prov},
		Keys:      plainKeyLoader{},
	}

	mc := &secretsyncv1alpha1.SecretSync{
		Spec: secretsyncv1alpha1.SecretSyncSpec{
			Secrets: secretsyncv1alpha1.SecretsSelector{Environment: "prod"},
			Features: secretsyncv1alpha1.FeatureFlags{GitPullsSuspended: true},
		},
	}

	st := NewState()
	st.LastArtifactDir = root

	result := eng.Reconcile(context.Background(), "ns/mc1", mc, st)

	require.NoError(t, result.Err)
	assert.Equal(t, PhaseSucceeded, result.Phase)
	assert.Equal(t, 2, result.SecretsCount)
	assert.Equal(t, PhaseWaiting, st.Phase)
	assert.Equal(t, []byte("k1"), prov.latest["API_KEY"].Value)
}

func TestReconcileStartsSpansForDecryptPlanAndPublish(t *testing.T) {
	root := t.TempDir()
	writeSecretsFile(t, root, "prod", "API_KEY=k1\n")

	tracer := &recordingTracer{}
	eng := &Engine{
		Sources:   refusingSourceResolver{t: t},
		Overlay:   noOverlay{},
		Providers: staticProviderFactory{prov: newFakeProvider()},
		Keys:      plainKeyLoader{},
		Tracer:    tracer,
	}

	mc := &secretsyncv1alpha1.SecretSync{
		Spec: secretsyncv1alpha1.SecretSyncSpec{
			Secrets:  secretsyncv1alpha1.SecretsSelector{Environment: "prod"},
			Features: secretsyncv1alpha1.FeatureFlags{GitPullsSuspended: true},
			Provider: secretsyncv1alpha1.ProviderSelector{GCP: &secretsyncv1alpha1.GCPProvider{}},
		},
	}

	st := NewState()
	st.LastArtifactDir = root
	st.LastRevision = "rev-123"

	result := eng.Reconcile(context.Background(), "ns/mc1", mc, st)
	require.NoError(t, result.Err)

	require.Len(t, tracer.spans, 3)
	assert.Equal(t, "decrypt", tracer.spans[0].name)
	assert.Equal(t, "plan", tracer.spans[1].name)
	assert.Equal(t, "publish", tracer.spans[2].name)
	for _, span := range tracer.spans {
		assert.Equal(t, "ns/mc1", span.attrs["mc_identity"])
		assert.Equal(t, "rev-123", span.attrs["source_revision"])
		assert.NoError(t, span.err)
	}
	assert.Equal(t, "gcp", tracer.spans[1].attrs["provider"])
}

func TestReconcileSuspendedSkipsEverything(t *testing.T) {
	suspend := true
	eng := &Engine{
		Sources:   refusingSourceResolver{t: t},
		Overlay:   noOverlay{},
		Providers: staticProviderFactory{prov: newFakeProvider()},
		Keys:      plainKeyLoader{},
	}

	mc := &secretsyncv1alpha1.SecretSync{
		Spec: secretsyncv1alpha1.SecretSyncSpec{
			Annotations: secretsyncv1alpha1.ImperativeAnnotations{Suspend: &suspend},
		},
	}

	st := NewState()
	result := eng.Reconcile(context.Background(), "ns/mc1", mc, st)

	assert.Equal(t, PhaseSuspended, result.Phase)
	assert.Equal(t, PhaseSuspended, st.Phase)
}

func TestReconcilePublishFailureRetainsPartialProgress(t *testing.T) {
	root := t.TempDir()
	writeSecretsFile(t, root, "prod", "A=v1\nB=v2\n")

	prov := &failingAfterFirstProvider{fakeProvider: newFakeProvider()}
	eng := &Engine{
		Sources:   refusingSourceResolver{t: t},
		Overlay:   noOverlay{},
		Providers: staticProviderFactory{prov: prov},
		Keys:      plainKeyLoader{},
	}

	mc := &secretsyncv1alpha1.SecretSync{
		Spec: secretsyncv1alpha1.SecretSyncSpec{
			Secrets:  secretsyncv1alpha1.SecretsSelector{Environment: "prod"},
			Features: secretsyncv1alpha1.FeatureFlags{GitPullsSuspended: true},
		},
	}

	st := NewState()
	st.LastArtifactDir = root

	result := eng.Reconcile(context.Background(), "ns/mc1", mc, st)

	require.Error(t, result.Err)
	assert.Equal(t, PhaseFailed, result.Phase)
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, 1, st.FailureCount)
	assert.Len(t, result.Applied, 1)
}

// failingAfterFirstProvider succeeds on its first EnsurePresent call and
// fails every one after, to exercise ApplyPlan's partial-progress path.
type failingAfterFirstProvider struct {
	*fakeProvider
	calls int
}

func (f *failingAfterFirstProvider) EnsurePresent(ctx context.Context, name string, value []byte) (string, bool, error) {
	f.calls++
	if f.calls > 1 {
		return "", false, &provider.Error{Kind: provider.ErrAuth, Cause: errors.New("denied")}
	}
	return f.fakeProvider.EnsurePresent(ctx, name, value)
}
