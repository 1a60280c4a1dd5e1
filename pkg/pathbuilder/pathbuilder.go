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

// Package pathbuilder constructs the remote identifier a provider RPC needs
// for one secret-manager operation (spec.md §4.1): a fluent accumulation of
// (operation, project, location, parent, secret, version), validated when
// the identifier is finally rendered. No other component constructs a
// provider resource identifier directly; a call site that omits a
// component its operation requires is a structural bug, surfaced as a
// named missing-path-component failure rather than a malformed RPC
// request.
package pathbuilder

import "fmt"

// Operation identifies the shape of provider RPC a Builder is constructing
// an identifier for. Required components vary by Operation, not by
// provider: every provider.Provider implementation drives the same set.
type Operation string

const (
	OpListSecrets          Operation = "list-secrets"
	OpCreateSecret         Operation = "create-secret"
	OpGetSecretVersion     Operation = "get-secret-version"
	OpAddSecretVersion     Operation = "add-secret-version"
	OpDisableSecretVersion Operation = "disable-secret-version"
)

// MissingComponentError reports that Build was asked to render an
// identifier for Op without a component Op requires. It is always a
// programmer error: every call site is expected to supply every component
// its operation needs, and unit tests — not a runtime fallback — are how
// that stays true.
type MissingComponentError struct {
	Op        Operation
	Component string
}

func (e *MissingComponentError) Error() string {
	return fmt.Sprintf("missing-path-component: %s requires %s", e.Op, e.Component)
}

// Builder fluently accumulates the components of one provider resource
// identifier. The zero value is a usable empty Builder; With* methods
// return a modified copy so calls chain without aliasing shared state.
type Builder struct {
	op       Operation
	project  string
	location string
	parent   string
	secret   string
	version  string
}

// New starts a Builder for op.
func New(op Operation) Builder {
	return Builder{op: op}
}

// WithProject sets the hierarchical identifier's project component (GCP).
// Left unset for providers addressed by a flat secret name (AWS, Azure).
func (b Builder) WithProject(project string) Builder {
	b.project = project
	return b
}

// WithLocation sets an optional region/location component, for providers
// whose resource hierarchy is scoped below the project.
func (b Builder) WithLocation(location string) Builder {
	b.location = location
	return b
}

// WithParent overrides the derived parent resource. Most operations derive
// their parent from project (and location); WithParent is for the rare RPC
// whose parent isn't simply "projects/{project}[/locations/{location}]".
func (b Builder) WithParent(parent string) Builder {
	b.parent = parent
	return b
}

// WithSecret sets the logical secret name, usually the Owned Remote Name
// the naming policy computed.
func (b Builder) WithSecret(secret string) Builder {
	b.secret = secret
	return b
}

// WithVersion sets the version component. Left unset, OpGetSecretVersion
// defaults to "latest"; every other operation that needs a version treats
// an unset value as missing.
func (b Builder) WithVersion(version string) Builder {
	b.version = version
	return b
}

// Build validates that every component b.op requires is present and
// renders either an HTTP path or RPC resource name. A Builder with a
// project component renders GCP-style hierarchical names; one without
// renders the bare secret name, with the version passed to the SDK call as
// a separate argument rather than embedded in the identifier (AWS, Azure).
func (b Builder) Build() (string, error) {
	if b.op != OpListSecrets && b.secret == "" {
		return "", &MissingComponentError{Op: b.op, Component: "secret"}
	}
	if b.op == OpDisableSecretVersion && b.version == "" {
		return "", &MissingComponentError{Op: b.op, Component: "version"}
	}

	if b.project == "" {
		return b.secret, nil
	}

	parent := b.parent
	if parent == "" {
		parent = "projects/" + b.project
		if b.location != "" {
			parent += "/locations/" + b.location
		}
	}

	switch b.op {
	case OpListSecrets, OpCreateSecret:
		return parent, nil
	case OpAddSecretVersion:
		return parent + "/secrets/" + b.secret, nil
	case OpGetSecretVersion:
		version := b.version
		if version == "" {
			version = "latest"
		}
		return parent + "/secrets/" + b.secret + "/versions/" + version, nil
	case OpDisableSecretVersion:
		return parent + "/secrets/" + b.secret + "/versions/" + b.version, nil
	default:
		return parent + "/secrets/" + b.secret, nil
	}
}
