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
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	secretsyncv1alpha1 "github.com/secretsync-io/secret-sync-controller/pkg/apis/secretsync/v1alpha1"
	"github.com/secretsync-io/secret-sync-controller/pkg/artifactcache"
)

var sourceGVKs = map[secretsyncv1alpha1.SourceKind]schema.GroupVersionKind{
	secretsyncv1alpha1.SourceKindGitRepository: {Group: "source.toolkit.fluxcd.io", Version: "v1", Kind: "GitRepository"},
	secretsyncv1alpha1.SourceKindApplication:   {Group: "argoproj.io", Version: "v1alpha1", Kind: "Application"},
}

// SourceResolver reads the `status.artifact` contract spec.md §6 requires
// every source-reference kind to expose, via generic apimachinery
// accessors against an Unstructured object. It never imports
// source-controller or argo-cd types directly (spec.md §1's "external
// collaborator" boundary).
type SourceResolver struct {
	Client client.Client
}

// Resolve reads ref's referenced object and returns the artifactcache
// Request it advertises.
func (r SourceResolver) Resolve(ctx context.Context, ref secretsyncv1alpha1.SourceReference) (artifactcache.Request, error) {
	gvk, ok := sourceGVKs[ref.Kind]
	if !ok {
		return artifactcache.Request{}, fmt.Errorf("unsupported source kind %q", ref.Kind)
	}

	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(gvk)
	key := types.NamespacedName{Namespace: ref.Namespace, Name: ref.Name}
	if err := r.Client.Get(ctx, key, obj); err != nil {
		if apierrors.IsNotFound(err) {
			return artifactcache.Request{}, fmt.Errorf("source %s %s not found", ref.Kind, key)
		}
		return artifactcache.Request{}, fmt.Errorf("getting source %s %s: %w", ref.Kind, key, err)
	}

	url, _, err := unstructured.NestedString(obj.Object, "status", "artifact", "url")
	if err != nil || url == "" {
		return artifactcache.Request{}, fmt.Errorf("source %s %s: status.artifact.url not ready", ref.Kind, key)
	}
	revision, _, err := unstructured.NestedString(obj.Object, "status", "artifact", "revision")
	if err != nil || revision == "" {
		return artifactcache.Request{}, fmt.Errorf("source %s %s: status.artifact.revision not ready", ref.Kind, key)
	}
	checksum, _, err := unstructured.NestedString(obj.Object, "status", "artifact", "checksum")
	if err != nil {
		return artifactcache.Request{}, fmt.Errorf("source %s %s: reading status.artifact.checksum: %w", ref.Kind, key, err)
	}
	size, _, err := unstructured.NestedInt64(obj.Object, "status", "artifact", "size")
	if err != nil {
		return artifactcache.Request{}, fmt.Errorf("source %s %s: reading status.artifact.size: %w", ref.Kind, key, err)
	}

	return artifactcache.Request{
		Source:   key.String(),
		Revision: revision,
		URL:      url,
		Checksum: checksum,
		Size:     size,
	}, nil
}
