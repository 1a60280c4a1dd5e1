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

package runtimeconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvOverlaysOnlySetVariables(t *testing.T) {
	t.Setenv("SECRETSYNC_WORKERS", "8")
	t.Setenv("SECRETSYNC_MIN_BACKOFF", "1s")

	cfg := FromEnv(Default())

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, time.Second, cfg.MinBackoff)
	assert.Equal(t, Default().MaxBackoff, cfg.MaxBackoff)
}

func TestFromEnvIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("SECRETSYNC_WORKERS", "not-a-number")

	cfg := FromEnv(Default())

	assert.Equal(t, Default().Workers, cfg.Workers)
}

func TestStoreSwapIsVisibleToLoad(t *testing.T) {
	s := NewStore(Default())
	require.Equal(t, Default().Workers, s.Load().Workers)

	s.Swap(Config{Workers: 42})

	assert.Equal(t, 42, s.Load().Workers)
}

func TestStoreReloadFromEnv(t *testing.T) {
	t.Setenv("SECRETSYNC_WORKERS", "16")
	s := NewStore(Default())

	s.ReloadFromEnv()

	assert.Equal(t, 16, s.Load().Workers)
}
