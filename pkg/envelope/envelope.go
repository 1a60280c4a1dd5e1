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

// Package envelope decrypts envelope-encrypted secret values. Two recipient
// schemes are supported: scheme A (OpenPGP-style) and scheme B (X25519,
// via age). Keys for both schemes are supplied by the caller; this package
// never talks to the orchestrator's API (spec.md §4.3).
package envelope

import (
	"fmt"
	"strings"
)

// Scheme identifies which recipient scheme produced a ciphertext.
type Scheme string

const (
	SchemeOpenPGP Scheme = "openpgp"
	SchemeX25519  Scheme = "x25519"
)

// KeyNotFoundError is returned when the decryptor has no key material for
// any configured scheme; spec.md §4.3 calls this decryption-key-not-found.
type KeyNotFoundError struct {
	Scheme Scheme
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("decryption-key-not-found: no key material for scheme %s", e.Scheme)
}

// DecryptionFailedError aggregates the per-scheme failures when every
// configured scheme fails to decrypt a value (spec.md §4.3:
// decryption-failed(reason-per-scheme)).
type DecryptionFailedError struct {
	Reasons map[Scheme]error
}

func (e *DecryptionFailedError) Error() string {
	var b strings.Builder
	b.WriteString("decryption-failed:")
	for scheme, err := range e.Reasons {
		fmt.Fprintf(&b, " %s=%v;", scheme, err)
	}
	return b.String()
}

// Keys holds the private key material for each scheme this decryptor can
// attempt. Either may be nil if that scheme's key was not configured for
// the MC.
type Keys struct {
	OpenPGPPrivateKey []byte
	X25519Identity    []byte
}

// Decryptor dispatches a ciphertext to the appropriate scheme, trying
// scheme A (OpenPGP) before scheme B (X25519) when both are configured,
// per spec.md §4.3's selection policy.
type Decryptor struct {
	keys Keys
}

// New returns a Decryptor configured with the given key material.
func New(keys Keys) *Decryptor {
	return &Decryptor{keys: keys}
}

// Decrypt detects which scheme produced ciphertext and decrypts it. If
// ciphertext is not recognized as envelope-encrypted at all, ok is false
// and plaintext should be treated as already-plain.
func (d *Decryptor) Decrypt(ciphertext string) (plaintext string, ok bool, err error) {
	isPGP := looksLikeOpenPGP(ciphertext)
	isAge := looksLikeX25519(ciphertext)
	if !isPGP && !isAge {
		return "", false, nil
	}

	reasons := map[Scheme]error{}

	if isPGP {
		if len(d.keys.OpenPGPPrivateKey) == 0 {
			reasons[SchemeOpenPGP] = &KeyNotFoundError{Scheme: SchemeOpenPGP}
		} else if pt, decErr := decryptOpenPGP(ciphertext, d.keys.OpenPGPPrivateKey); decErr == nil {
			return pt, true, nil
		} else {
			reasons[SchemeOpenPGP] = decErr
		}
	}

	if isAge {
		if len(d.keys.X25519Identity) == 0 {
			reasons[SchemeX25519] = &KeyNotFoundError{Scheme: SchemeX25519}
		} else if pt, decErr := decryptX25519(ciphertext, d.keys.X25519Identity); decErr == nil {
			return pt, true, nil
		} else {
			reasons[SchemeX25519] = decErr
		}
	}

	if len(reasons) == 1 {
		for scheme, rerr := range reasons {
			if _, isKeyErr := rerr.(*KeyNotFoundError); isKeyErr {
				_ = scheme
				return "", true, rerr
			}
		}
	}
	return "", true, &DecryptionFailedError{Reasons: reasons}
}
