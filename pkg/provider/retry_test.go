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

package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 3, time.Second, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &Error{Kind: ErrNetwork, Cause: errors.New("boom")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 2, time.Second, func(ctx context.Context) error {
		attempts++
		return &Error{Kind: ErrThrottled, Cause: errors.New("rate limited")}
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryDoesNotRetryNonTransientErrors(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 3, time.Second, func(ctx context.Context) error {
		attempts++
		return &Error{Kind: ErrAuth, Cause: errors.New("forbidden")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
