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

package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/codes"
)

func TestNoopStartSpanNeverPanics(t *testing.T) {
	ctx, finish := Noop.StartSpan(context.Background(), "fetch", map[string]string{"mc": "team-a/prod"})
	require.NotNil(t, ctx)
	finish(nil)
	finish(errors.New("called twice is still safe"))
}

func TestOTelTracerRecordsAttributesAndSuccess(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	tr := NewOTelTracer(provider, "secret-sync-controller")
	_, finish := tr.StartSpan(context.Background(), "fetch", map[string]string{
		"mc_identity": "team-a/prod-secrets",
		"provider":    "gcp",
	})
	finish(nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "fetch", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
}

func TestOTelTracerSetsErrorMessageOnFailure(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	tr := NewOTelTracer(provider, "secret-sync-controller")
	_, finish := tr.StartSpan(context.Background(), "publish", nil)
	finish(errors.New("provider quota exceeded"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	var found bool
	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) == "error.message" {
			found = true
			assert.Equal(t, "provider quota exceeded", kv.Value.AsString())
		}
	}
	assert.True(t, found, "expected error.message attribute on failed span")
}
