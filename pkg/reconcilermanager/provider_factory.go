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

	"sigs.k8s.io/controller-runtime/pkg/client"

	secretsyncv1alpha1 "github.com/secretsync-io/secret-sync-controller/pkg/apis/secretsync/v1alpha1"
	"github.com/secretsync-io/secret-sync-controller/pkg/envelope"
	"github.com/secretsync-io/secret-sync-controller/pkg/provider"
	"github.com/secretsync-io/secret-sync-controller/pkg/provider/aws"
	"github.com/secretsync-io/secret-sync-controller/pkg/provider/azure"
	"github.com/secretsync-io/secret-sync-controller/pkg/provider/gcp"
)

// ProviderFactory constructs the concrete provider.Provider named by an
// MC's ProviderSelector (spec.md §4.6: exactly one of gcp/aws/azure).
type ProviderFactory struct{}

// New implements engine.ProviderFactory.
func (ProviderFactory) New(ctx context.Context, sel secretsyncv1alpha1.ProviderSelector) (provider.Provider, error) {
	kind, ok := sel.Kind()
	if !ok {
		return nil, fmt.Errorf("provider selector must name exactly one of gcp, aws, azure")
	}
	switch kind {
	case secretsyncv1alpha1.ProviderGCP:
		return gcp.New(ctx, sel.GCP.Project)
	case secretsyncv1alpha1.ProviderAWS:
		return aws.New(ctx, sel.AWS.Region)
	case secretsyncv1alpha1.ProviderAzure:
		return azure.New(sel.Azure.VaultURL)
	default:
		return nil, fmt.Errorf("unsupported provider kind %q", kind)
	}
}

// KeyLoader reads the envelope decryption keys an MC's SecretsSelector
// references out of Kubernetes Secrets in the MC's own namespace.
type KeyLoader struct {
	Client    client.Client
	Namespace string
}

// Load implements engine.KeyLoader.
func (l KeyLoader) Load(ctx context.Context, sel secretsyncv1alpha1.SecretsSelector) (envelope.Keys, error) {
	return envelope.LoadKeys(ctx, l.Client, l.Namespace, sel)
}
