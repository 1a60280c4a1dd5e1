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
	"fmt"
	"sort"

	"sigs.k8s.io/yaml"
)

// ParseTree decodes a hierarchical tree-format file (YAML, decoded through
// the same JSON-based path the teacher's API types use) and flattens it
// into a Bundle with dot-joined keys.
func ParseTree(data []byte) (*Bundle, error) {
	var node map[string]interface{}
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, &ParseError{Line: 0, Reason: err.Error()}
	}

	flat, err := Flatten(node)
	if err != nil {
		return nil, err
	}

	bundle := NewBundle()
	for _, k := range sortedKeys(flat) {
		bundle.Set(k, flat[k], true)
	}
	return bundle, nil
}

// Flatten walks a decoded tree and joins nested keys with ".", failing on
// any non-scalar leaf (spec.md §4.2). Adapted from the leaf-traversal shape
// in the teacher's declared.toFieldSet, generalized from JSON-Pointer paths
// over unstructured.Unstructured to dot-joined paths over a decoded tree.
func Flatten(node map[string]interface{}) (map[string]string, error) {
	flat := map[string]string{}
	if err := flattenInto(node, "", flat); err != nil {
		return nil, err
	}
	return flat, nil
}

func flattenInto(node interface{}, prefix string, out map[string]string) error {
	switch val := node.(type) {
	case map[string]interface{}:
		if len(val) == 0 {
			// An empty map is not a declared leaf; nothing to record.
			return nil
		}
		for k, v := range val {
			childPath := k
			if prefix != "" {
				childPath = prefix + "." + k
			}
			if err := flattenInto(v, childPath, out); err != nil {
				return err
			}
		}
		return nil
	case string:
		out[prefix] = val
		return nil
	case bool, int, int64, float64, nil:
		out[prefix] = fmt.Sprintf("%v", val)
		return nil
	default:
		return &NonScalarLeafError{Path: prefix}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
