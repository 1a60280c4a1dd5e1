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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	secretsyncv1alpha1 "github.com/secretsync-io/secret-sync-controller/pkg/apis/secretsync/v1alpha1"
)

func TestProviderFactoryRejectsAmbiguousSelector(t *testing.T) {
	f := ProviderFactory{}

	_, err := f.New(context.Background(), secretsyncv1alpha1.ProviderSelector{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one")

	_, err = f.New(context.Background(), secretsyncv1alpha1.ProviderSelector{
		GCP: &secretsyncv1alpha1.GCPProvider{Project: "p"},
		AWS: &secretsyncv1alpha1.AWSProvider{Region: "us-east-1"},
	})
	require.Error(t, err)
}

func TestKeyLoaderWithNoRefsReturnsZeroKeys(t *testing.T) {
	l := KeyLoader{Client: fake.NewClientBuilder().Build(), Namespace: "team-a"}

	keys, err := l.Load(context.Background(), secretsyncv1alpha1.SecretsSelector{})
	require.NoError(t, err)
	assert.Empty(t, keys.OpenPGPPrivateKey)
	assert.Empty(t, keys.X25519Identity)
}
