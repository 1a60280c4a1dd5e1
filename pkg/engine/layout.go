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

package engine

import "path"

// artifactLayout locates the env/overlay/tree files inside one extracted
// artifact for a given environment (spec.md §4.7's env/overlay/tree
// layout). It is a filesystem concern local to parse, not a provider
// resource identifier, so it lives here rather than in pkg/pathbuilder.
type artifactLayout struct {
	root        string
	environment string
}

func newArtifactLayout(root, environment string) artifactLayout {
	return artifactLayout{root: root, environment: environment}
}

// environmentDir returns root/environment.
func (l artifactLayout) environmentDir() string {
	return path.Join(l.root, l.environment)
}

// overlay returns the path to an overlay directory under the environment.
func (l artifactLayout) overlay(overlayPath string) string {
	return path.Join(l.environmentDir(), overlayPath)
}

// envFile returns the path to the flat env-format secret file for a given
// base name (e.g. "secrets" -> ".../secrets.env").
func (l artifactLayout) envFile(base string) string {
	return path.Join(l.environmentDir(), base+".env")
}

// treeFile returns the path to the hierarchical tree-format secret file.
func (l artifactLayout) treeFile(base string) string {
	return path.Join(l.environmentDir(), base+".yaml")
}
