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
	"fmt"
	"io"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// Scheme A (OpenPGP-style). Mirrors scheme B's detect-by-prefix /
// decrypt-by-identity shape so the two schemes share one dispatcher
// (envelope.go). Ciphertext is the ASCII-armor-free binary OpenPGP message,
// base64-encoded behind a versioned prefix.
const openPGPValuePrefix = "age-openpgp:v1:"

func looksLikeOpenPGP(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), openPGPValuePrefix)
}

func decryptOpenPGP(ciphertext string, privateKey []byte) (string, error) {
	payload := strings.TrimPrefix(strings.TrimSpace(ciphertext), openPGPValuePrefix)
	raw, err := decodeAnyBase64(payload)
	if err != nil {
		return "", err
	}

	entityList, err := openpgp.ReadKeyRing(bytes.NewReader(privateKey))
	if err != nil {
		return "", fmt.Errorf("reading OpenPGP private key: %w", err)
	}

	md, err := openpgp.ReadMessage(bytes.NewReader(raw), entityList, nil, &packet.Config{})
	if err != nil {
		return "", fmt.Errorf("decrypting OpenPGP message: %w", err)
	}

	plain, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return "", fmt.Errorf("reading decrypted OpenPGP body: %w", err)
	}
	return string(plain), nil
}

// encodeOpenPGPValue wraps a binary OpenPGP message in the prefixed form
// decryptOpenPGP accepts. Nothing in the module calls it at present.
func encodeOpenPGPValue(raw []byte) string {
	return openPGPValuePrefix + base64.RawURLEncoding.EncodeToString(raw)
}
