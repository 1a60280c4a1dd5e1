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

// ParsePropertiesFile decodes a Java-properties file into a Bundle. Unlike
// ParseEnv, '#' and '!' both introduce comments, ':' is accepted as a
// separator alongside '=', and there is no disabled-flag convention —
// properties bundles are routed to the config store, never merged with
// secret bundles (spec.md §4.2).
func ParsePropertiesFile(data []byte) (*Bundle, error) {
	bundle := NewBundle()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "!") {
			continue
		}
		key, value, ok := splitPropertiesLine(trimmed)
		if !ok {
			return nil, &ParseError{Line: lineNo, Reason: "missing separator"}
		}
		if key == "" {
			return nil, &ParseError{Line: lineNo, Reason: "empty key"}
		}
		bundle.Set(key, value, true)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return bundle, nil
}

func splitPropertiesLine(s string) (key, value string, ok bool) {
	idx := strings.IndexAny(s, "=:")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+1:]), true
}
