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

package envelope

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	secretsyncv1alpha1 "github.com/secretsync-io/secret-sync-controller/pkg/apis/secretsync/v1alpha1"
)

// LoadKeys resolves the MC's configured key refs to a Keys value, reading
// each referenced Secret from namespace (the MC's own namespace, never the
// controller's — spec.md §4.3). A missing ref is left zero-valued in Keys
// rather than treated as an error; the caller only sees KeyNotFoundError
// once a ciphertext requiring that scheme is actually encountered.
func LoadKeys(ctx context.Context, c client.Client, namespace string, selector secretsyncv1alpha1.SecretsSelector) (Keys, error) {
	var keys Keys
	var err error

	if selector.OpenPGPKeyRef != nil {
		keys.OpenPGPPrivateKey, err = readSecretKey(ctx, c, namespace, *selector.OpenPGPKeyRef)
		if err != nil {
			return Keys{}, err
		}
	}
	if selector.X25519KeyRef != nil {
		keys.X25519Identity, err = readSecretKey(ctx, c, namespace, *selector.X25519KeyRef)
		if err != nil {
			return Keys{}, err
		}
	}
	return keys, nil
}

func readSecretKey(ctx context.Context, c client.Client, namespace string, ref secretsyncv1alpha1.EncryptionKeyRef) ([]byte, error) {
	secret := &corev1.Secret{}
	key := types.NamespacedName{Namespace: namespace, Name: ref.SecretName}
	if err := c.Get(ctx, key, secret); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, &KeyNotFoundError{}
		}
		return nil, fmt.Errorf("reading key secret %s/%s: %w", namespace, ref.SecretName, err)
	}

	data, ok := secret.Data[ref.SecretKey]
	if !ok {
		return nil, fmt.Errorf("decryption-key-not-found: secret %s/%s has no key %q", namespace, ref.SecretName, ref.SecretKey)
	}
	return data, nil
}
