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

package parser

import (
	"bufio"
	"bytes"
	"strings"
)

// ParseEnv decodes a flat key=value file into a Bundle. Each non-blank line
// is classified with Classify; disabled entries are kept in the Bundle
// (callers decide whether to surface them) with Enabled=false.
func ParseEnv(data []byte) (*Bundle, error) {
	bundle := NewBundle()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		key, value, enabled, ok := Classify(line)
		if !ok {
			continue
		}
		if key == "" {
			return nil, &ParseError{Line: lineNo, Reason: "empty key"}
		}
		bundle.Set(key, value, enabled)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return bundle, nil
}

// Classify implements spec.md's classify(line) -> (key, value, enabled).
// A leading '#' followed by KEY=VALUE marks the entry disabled; comments
// without a key/value pair are discarded (ok=false). Blank lines are also
// discarded.
func Classify(line string) (key, value string, enabled, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", "", false, false
	}

	enabled = true
	if strings.HasPrefix(trimmed, "#") {
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		if !looksLikeAssignment(rest) {
			return "", "", false, false
		}
		trimmed = rest
		enabled = false
	}

	eq := strings.Index(trimmed, "=")
	if eq < 0 {
		return "", "", false, false
	}
	key = strings.TrimSpace(trimmed[:eq])
	value = strings.TrimSpace(trimmed[eq+1:])
	value = unquote(value)
	return key, value, enabled, true
}

func looksLikeAssignment(s string) bool {
	eq := strings.Index(s, "=")
	if eq <= 0 {
		return false
	}
	key := strings.TrimSpace(s[:eq])
	return key != "" && !strings.ContainsAny(key, " \t")
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
