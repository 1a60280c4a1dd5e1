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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	secretsyncv1alpha1 "github.com/secretsync-io/secret-sync-controller/pkg/apis/secretsync/v1alpha1"
	"github.com/secretsync-io/secret-sync-controller/pkg/artifactcache"
	"github.com/secretsync-io/secret-sync-controller/pkg/engine"
	"github.com/secretsync-io/secret-sync-controller/pkg/overlay"
	"github.com/secretsync-io/secret-sync-controller/pkg/provider"
	"github.com/secretsync-io/secret-sync-controller/pkg/statuswriter"
)

type refusingSourceResolver struct{ t *testing.T }

func (r refusingSourceResolver) Resolve(ctx context.Context, ref secretsyncv1alpha1.SourceReference) (artifactcache.Request, error) {
	r.t.Fatal("Resolve should not be called when reusing the last cache entry")
	return artifactcache.Request{}, nil
}

type noOverlay struct{}

func (noOverlay) Build(ctx context.Context, dir string) ([]overlay.SecretResource, error) {
	return nil, errors.New("overlay should not run in this test")
}

type fakeProvider struct {
	latest map[string][]byte
}

func newFakeProvider() *fakeProvider { return &fakeProvider{latest: map[string][]byte{}} }

func (p *fakeProvider) ListOwned(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for name := range p.latest {
		names = append(names, name)
	}
	return names, nil
}

func (p *fakeProvider) ReadLatest(ctx context.Context, name string) (provider.Version, bool, error) {
	v, ok := p.latest[name]
	if !ok {
		return provider.Version{}, false, nil
	}
	return provider.Version{Value: v}, true, nil
}

func (p *fakeProvider) EnsurePresent(ctx context.Context, name string, value []byte) (string, bool, error) {
	p.latest[name] = value
	return "v1", true, nil
}

func (p *fakeProvider) DisableVersion(ctx context.Context, name, versionID string) error {
	return nil
}

type staticProviderFactory struct{ prov provider.Provider }

func (f staticProviderFactory) New(ctx context.Context, sel secretsyncv1alpha1.ProviderSelector) (provider.Provider, error) {
	return f.prov, nil
}

func writeSecretsFile(t *testing.T, root, environment, content string) {
	t.Helper()
	dir := filepath.Join(root, environment)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secrets.env"), []byte(content), 0o644))
}

func newRunnerScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, secretsyncv1alpha1.AddToScheme(scheme))
	return scheme
}

func TestRunnerReconcileWritesStatusAndSchedulesNextInterval(t *testing.T) {
	root := t.TempDir()
	writeSecretsFile(t, root, "prod", "API_KEY=k1\n")

	mc := &secretsyncv1alpha1.SecretSync{
		ObjectMeta: metav1.ObjectMeta{Namespace: "team-a", Name: "prod-secrets"},
		Spec: secretsyncv1alpha1.SecretSyncSpec{
			Secrets:  secretsyncv1alpha1.SecretsSelector{Environment: "prod"},
			Features: secretsyncv1alpha1.FeatureFlags{GitPullsSuspended: true},
			Timing:   secretsyncv1alpha1.Timing{PullIntervalSeconds: 60, ReconcileIntervalSeconds: 45},
		},
	}
	c := fake.NewClientBuilder().
		WithScheme(newRunnerScheme(t)).
		WithStatusSubresource(&secretsyncv1alpha1.SecretSync{}).
		WithObjects(mc).
		Build()

	eng := &engine.Engine{
		Cache:     artifactcache.New(root),
		Sources:   refusingSourceResolver{t: t},
		Overlay:   noOverlay{},
		Providers: staticProviderFactory{prov: newFakeProvider()},
	}

	runner := NewRunner(c, eng, statuswriter.New(c), nil)
	// Seed the runner's carried state with the extraction dir already
	// populated, mirroring the engine tests' git-pulls-suspended shortcut.
	runner.stateFor("team-a/prod-secrets").LastArtifactDir = root

	outcome := runner.Reconcile(context.Background(), "team-a/prod-secrets")

	assert.False(t, outcome.RetryableFailure)

	var got secretsyncv1alpha1.SecretSync
	require.NoError(t, c.Get(context.Background(), types.NamespacedName{Namespace: "team-a", Name: "prod-secrets"}, &got))
	assert.Equal(t, secretsyncv1alpha1.PhaseSynced, got.Status.Phase)
	assert.Equal(t, 1, got.Status.SecretsCount)
}

func TestRunnerReconcileForgetsStateWhenMCDeleted(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(newRunnerScheme(t)).Build()
	eng := &engine.Engine{}
	runner := NewRunner(c, eng, statuswriter.New(c), nil)
	runner.stateFor("team-a/gone")

	outcome := runner.Reconcile(context.Background(), "team-a/gone")

	assert.False(t, outcome.RetryableFailure)
	_, stillTracked := runner.states["team-a/gone"]
	assert.False(t, stillTracked)
}

func TestRunnerReconcileMalformedKeyIsNoop(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(newRunnerScheme(t)).Build()
	runner := NewRunner(c, &engine.Engine{}, statuswriter.New(c), nil)

	outcome := runner.Reconcile(context.Background(), "not-a-valid-key")

	assert.False(t, outcome.RetryableFailure)
}

func TestRunnerShouldForceReconcileTracksConsumedToken(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(newRunnerScheme(t)).Build()
	runner := NewRunner(c, &engine.Engine{}, statuswriter.New(c), nil)

	specWithToken := secretsyncv1alpha1.SecretSyncSpec{
		Annotations: secretsyncv1alpha1.ImperativeAnnotations{ReconcileNow: "token-1"},
	}
	assert.True(t, runner.ShouldForceReconcile("team-a/prod-secrets", specWithToken),
		"a never-before-seen token must force")

	runner.stateFor("team-a/prod-secrets").LastReconcileNowToken = "token-1"
	assert.False(t, runner.ShouldForceReconcile("team-a/prod-secrets", specWithToken),
		"an already-consumed token must not force again")

	specNewToken := secretsyncv1alpha1.SecretSyncSpec{
		Annotations: secretsyncv1alpha1.ImperativeAnnotations{ReconcileNow: "token-2"},
	}
	assert.True(t, runner.ShouldForceReconcile("team-a/prod-secrets", specNewToken),
		"a newly advanced token must force")
}
