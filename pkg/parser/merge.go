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

// Merge combines an optional env bundle and an optional tree bundle: tree
// values override env values on key collision, and ordering from env is
// preserved for keys unique to env (spec.md §4.2).
func Merge(env, tree *Bundle) *Bundle {
	result := NewBundle()

	if env != nil {
		for _, e := range env.Entries() {
			result.Set(e.Key, e.Value, e.Enabled)
		}
	}
	if tree != nil {
		for _, e := range tree.Entries() {
			result.Set(e.Key, e.Value, e.Enabled)
		}
	}
	return result
}
