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

package artifactcache

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func serveArtifact(t *testing.T, body []byte) (*httptest.Server, string, int64) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	sum := sha256.Sum256(body)
	return srv, hex.EncodeToString(sum[:]), int64(len(body))
}

func TestAcquireDownloadsAndExtracts(t *testing.T) {
	archive := buildTarGz(t, map[string]string{"prod/secrets.env": "DB_PASSWORD=hunter2\n"})
	srv, checksum, size := serveArtifact(t, archive)
	defer srv.Close()

	cache := New(t.TempDir())
	dir, err := cache.Acquire(context.Background(), Request{
		Source: "team/app", Revision: "rev-1", URL: srv.URL, Checksum: checksum, Size: size,
	})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "prod", "secrets.env"))
	require.NoError(t, err)
	assert.Equal(t, "DB_PASSWORD=hunter2\n", string(content))
}

func TestAcquireRejectsChecksumMismatch(t *testing.T) {
	archive := buildTarGz(t, map[string]string{"a.env": "x=1\n"})
	srv, _, size := serveArtifact(t, archive)
	defer srv.Close()

	cache := New(t.TempDir())
	_, err := cache.Acquire(context.Background(), Request{
		Source: "team/app", Revision: "rev-1", URL: srv.URL, Checksum: "deadbeef", Size: size,
	})
	require.Error(t, err)
	var corrupt *CorruptArtifactError
	require.ErrorAs(t, err, &corrupt)
}

func TestAcquireDedupesConcurrentCallsForSameKey(t *testing.T) {
	archive := buildTarGz(t, map[string]string{"a.env": "x=1\n"})
	srv, checksum, size := serveArtifact(t, archive)
	defer srv.Close()

	cache := New(t.TempDir())
	req := Request{Source: "team/app", Revision: "rev-1", URL: srv.URL, Checksum: checksum, Size: size}

	var wg sync.WaitGroup
	dirs := make([]string, 5)
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dirs[i], errs[i] = cache.Acquire(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i := range dirs {
		require.NoError(t, errs[i])
		assert.Equal(t, dirs[0], dirs[i])
	}
}

func TestAcquireEnforcesRetention(t *testing.T) {
	cache := New(t.TempDir())
	cache.Retention = 3

	for i := 0; i < 5; i++ {
		archive := buildTarGz(t, map[string]string{"a.env": "x=1\n"})
		srv, checksum, size := serveArtifact(t, archive)
		_, err := cache.Acquire(context.Background(), Request{
			Source:   "team/app",
			Revision: hex.EncodeToString([]byte{byte(i)}),
			URL:      srv.URL,
			Checksum: checksum,
			Size:     size,
		})
		srv.Close()
		require.NoError(t, err)
	}

	sourceDir := filepath.Join(cache.Root, "team_app")
	entries, err := os.ReadDir(sourceDir)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entries), 3)
}
