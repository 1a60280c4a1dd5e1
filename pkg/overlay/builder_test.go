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

package overlay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeTool writes an executable shell script that ignores its
// arguments (standing in for a real overlay tool invoked with the overlay
// directory) and prints fixed content to stdout, optionally exiting
// non-zero.
func writeFakeTool(t *testing.T, stdout string, exitCode int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-overlay-tool.sh")
	script := fmt.Sprintf("#!/bin/sh\ncat <<'BODY'\n%s\nBODY\nexit %d\n", stdout, exitCode)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

const sampleOutput = `apiVersion: v1
kind: ConfigMap
metadata:
  name: ignored-configmap
data:
  foo: bar
---
apiVersion: v1
kind: Secret
metadata:
  name: app-secrets
  namespace: default
data:
  DB_PASSWORD: aHVudGVyMg==
stringData:
  API_KEY: plain-value
`

func TestBuildExtractsSecretsOnly(t *testing.T) {
	tool := writeFakeTool(t, sampleOutput, 0)
	b := &Builder{Command: tool}
	secrets, err := b.Build(context.Background(), "/unused")
	require.NoError(t, err)
	require.Len(t, secrets, 1)

	s := secrets[0]
	assert.Equal(t, "app-secrets", s.Name)
	assert.Equal(t, "default", s.Namespace)
	assert.Equal(t, "hunter2", s.Data["DB_PASSWORD"])
	assert.Equal(t, "plain-value", s.Data["API_KEY"])
}

func TestBuildFailsOnNonZeroExit(t *testing.T) {
	tool := writeFakeTool(t, "", 1)
	b := &Builder{Command: tool}
	_, err := b.Build(context.Background(), "/unused")
	require.Error(t, err)
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
}
