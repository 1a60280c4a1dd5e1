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
	"bytes"
	"encoding/base64"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecryptPlainValuePassesThrough(t *testing.T) {
	d := New(Keys{})
	_, ok, err := d.Decrypt("not-encrypted-at-all")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecryptX25519RoundTrip(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, identity.Recipient())
	require.NoError(t, err)
	_, err = w.Write([]byte("s3cr3t"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	raw := buf.Bytes()
	prefix := []byte(ageMagicLine + ageStanzaPrefix)
	require.True(t, bytes.HasPrefix(raw, prefix))
	stripped := raw[len(prefix):]
	ciphertext := x25519ValuePrefix + base64.RawURLEncoding.EncodeToString(stripped)

	d := New(Keys{X25519Identity: []byte(identity.String())})
	plaintext, ok, err := d.Decrypt(ciphertext)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "s3cr3t", plaintext)
}

func TestDecryptX25519MissingKey(t *testing.T) {
	d := New(Keys{})
	_, ok, err := d.Decrypt(x25519ValuePrefix + "whatever")
	require.True(t, ok)
	require.Error(t, err)
	var keyErr *KeyNotFoundError
	assert.ErrorAs(t, err, &keyErr)
}
