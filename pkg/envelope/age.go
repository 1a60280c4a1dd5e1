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

	"filippo.io/age"
)

// Scheme B (X25519, via age). Ciphertext prefix and decode fallback shape
// are adapted from Aureuma-si's vault package (crypto_age.go): a
// versioned prefix followed by a base64 payload, with the raw age stream
// reassembled by re-prepending the magic/stanza header that was stripped
// before encoding, plus a multi-encoding decode fallback for values that
// predate strict RawURLEncoding.
const (
	x25519ValuePrefix = "age-x25519:v1:"
	ageMagicLine       = "age-encryption.org/v1\n"
	ageStanzaPrefix    = "-> X25519 "
)

func looksLikeX25519(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), x25519ValuePrefix)
}

func decryptX25519(ciphertext string, identityBytes []byte) (string, error) {
	identity, err := parseX25519Identity(identityBytes)
	if err != nil {
		return "", fmt.Errorf("parsing x25519 identity: %w", err)
	}

	raw, err := decodeX25519Payload(ciphertext)
	if err != nil {
		return "", err
	}

	r, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return "", err
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func parseX25519Identity(keyMaterial []byte) (*age.X25519Identity, error) {
	return age.ParseX25519Identity(strings.TrimSpace(string(keyMaterial)))
}

func decodeX25519Payload(ciphertext string) ([]byte, error) {
	ciphertext = strings.TrimSpace(ciphertext)
	payload := strings.TrimPrefix(ciphertext, x25519ValuePrefix)
	raw, err := decodeAnyBase64(payload)
	if err != nil {
		return nil, err
	}
	prefix := []byte(ageMagicLine + ageStanzaPrefix)
	out := make([]byte, 0, len(prefix)+len(raw))
	out = append(out, prefix...)
	out = append(out, raw...)
	return out, nil
}

func decodeAnyBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("invalid ciphertext payload: empty")
	}
	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	} {
		raw, decErr := enc.DecodeString(payload)
		if decErr == nil {
			return raw, nil
		}
		lastErr = decErr
	}
	return nil, fmt.Errorf("invalid ciphertext payload: %w", lastErr)
}
