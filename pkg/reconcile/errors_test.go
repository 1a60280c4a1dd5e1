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

package reconcile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	assert.True(t, TransientInfra("network", "", nil).Retryable())
	assert.True(t, CorruptArtifact("checksum-mismatch", "", nil).Retryable())
	assert.False(t, UserError("bad-spec", "", nil).Retryable())
	assert.False(t, Fatal("panic", "", nil).Retryable())
}

func TestFirstReconcileError(t *testing.T) {
	inner := UserError("parse-error", "line 4", errors.New("bad token"))
	agg := MultiError(nil, inner, errors.New("plain"))
	found := FirstReconcileError(agg)
	assert.Equal(t, inner, found)
}

func TestFirstReconcileErrorNilWhenNoneFound(t *testing.T) {
	agg := MultiError(errors.New("a"), errors.New("b"))
	assert.Nil(t, FirstReconcileError(agg))
}
