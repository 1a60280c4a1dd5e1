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
	"math"
	"time"
)

// Retry runs fn up to maxAttempts times, retrying only on transient
// *Error values, with exponential backoff bounded by perCallTimeout
// (spec.md §4.6: "exponential backoff bounded by a provider-level timeout,
// default 30s per call, 3 attempts"). Reimplemented locally in the shape of
// the teacher's own backoff-with-step-limit helper, since the teacher's
// util package (which supplies the original) is not part of the retrieved
// slice.
func Retry(ctx context.Context, maxAttempts int, perCallTimeout time.Duration, fn func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if perCallTimeout <= 0 {
		perCallTimeout = DefaultCallTimeout
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
		err := fn(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		perr, ok := err.(*Error)
		if !ok || !perr.Transient() {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}

		backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
