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

// Package overlay invokes an external overlay-rendering tool (a
// kustomize/kpt-fn-like binary) over an overlay directory and extracts the
// Secret resources it emits on stdout (spec.md §4.4).
package overlay

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os/exec"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
)

const (
	// DefaultTimeout bounds a single overlay-tool invocation.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxOutputBytes bounds the stdout stream read from the tool.
	DefaultMaxOutputBytes = 64 * 1 << 20 // 64 MiB
	stderrExcerptBytes    = 8 << 10      // 8 KiB
)

// BuildError reports a failed overlay-tool invocation, carrying a bounded
// stderr excerpt (spec.md §4.4: overlay-build-error(stderr excerpt)).
type BuildError struct {
	StderrExcerpt string
	Cause         error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("overlay-build-error: %v (stderr: %s)", e.Cause, e.StderrExcerpt)
}

func (e *BuildError) Unwrap() error { return e.Cause }

// SecretResource is one Secret document extracted from the overlay tool's
// output, with both data encodings decoded into a flat string map.
type SecretResource struct {
	Name      string
	Namespace string
	Data      map[string]string
}

// Builder invokes an overlay tool binary and extracts Secret resources.
type Builder struct {
	// Command is the overlay tool executable, e.g. "kustomize" or a kpt
	// function wrapper. Args are appended after the overlay directory.
	Command string
	Args    []string
	Timeout time.Duration
	MaxBytes int64
}

// New returns a Builder with spec.md §4.4's default timeout and output cap.
func New(command string, args ...string) *Builder {
	return &Builder{
		Command:  command,
		Args:     args,
		Timeout:  DefaultTimeout,
		MaxBytes: DefaultMaxOutputBytes,
	}
}

// Build runs the overlay tool against overlayDir and returns the Secret
// resources found in its stdout stream.
func (b *Builder) Build(ctx context.Context, overlayDir string) ([]SecretResource, error) {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBytes := b.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxOutputBytes
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{overlayDir}, b.Args...)
	cmd := exec.CommandContext(runCtx, b.Command, args...)

	var stderrBuf ringBuffer
	cmd.Stderr = &stderrBuf

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &BuildError{Cause: fmt.Errorf("opening stdout pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &BuildError{Cause: fmt.Errorf("starting overlay tool: %w", err)}
	}

	limited := io.LimitReader(stdout, maxBytes)
	output, readErr := io.ReadAll(limited)
	waitErr := cmd.Wait()

	if waitErr != nil {
		return nil, &BuildError{StderrExcerpt: stderrBuf.String(), Cause: fmt.Errorf("overlay tool exited: %w", waitErr)}
	}
	if readErr != nil {
		return nil, &BuildError{StderrExcerpt: stderrBuf.String(), Cause: fmt.Errorf("reading overlay tool output: %w", readErr)}
	}

	secrets, err := extractSecrets(output)
	if err != nil {
		return nil, &BuildError{StderrExcerpt: stderrBuf.String(), Cause: err}
	}
	return secrets, nil
}

func extractSecrets(output []byte) ([]SecretResource, error) {
	decoder := utilyaml.NewYAMLOrJSONDecoder(bytes.NewReader(output), 4096)
	var secrets []SecretResource
	for {
		var obj unstructured.Unstructured
		if err := decoder.Decode(&obj); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decoding overlay output: %w", err)
		}
		if len(obj.Object) == 0 {
			continue
		}
		if obj.GetKind() != "Secret" {
			continue
		}
		secrets = append(secrets, toSecretResource(obj))
	}
	return secrets, nil
}

func toSecretResource(obj unstructured.Unstructured) SecretResource {
	data := map[string]string{}

	if rawData, found, _ := unstructured.NestedStringMap(obj.Object, "data"); found {
		for k, v := range rawData {
			decoded, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				continue
			}
			data[k] = string(decoded)
		}
	}
	if rawStringData, found, _ := unstructured.NestedStringMap(obj.Object, "stringData"); found {
		for k, v := range rawStringData {
			data[k] = v
		}
	}

	return SecretResource{
		Name:      obj.GetName(),
		Namespace: obj.GetNamespace(),
		Data:      data,
	}
}

// ringBuffer retains only the last stderrExcerptBytes bytes written to it.
type ringBuffer struct {
	buf bytes.Buffer
}

func (r *ringBuffer) Write(p []byte) (int, error) {
	n, err := r.buf.Write(p)
	if r.buf.Len() > stderrExcerptBytes {
		excess := r.buf.Len() - stderrExcerptBytes
		r.buf.Next(excess)
	}
	return n, err
}

func (r *ringBuffer) String() string {
	return r.buf.String()
}
