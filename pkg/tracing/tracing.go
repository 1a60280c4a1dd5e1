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

// Package tracing provides the span interface the reconciliation engine
// starts around each pipeline stage (spec.md §4.10), and an OpenTelemetry
// backend for it. The interface is narrow on purpose: callers never touch
// an OpenTelemetry type directly, so the engine package stays free of a
// hard dependency on a particular tracing SDK.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer starts a span around one reconciliation stage. The returned
// finish func must be called exactly once with the stage's outcome; a
// non-nil error records the span as failed and sets its error.message
// attribute to err.Error().
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error))
}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string, _ map[string]string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// Noop discards every span. Engines constructed without an explicit Tracer
// use this, so tracing is opt-in rather than required for the engine to run.
var Noop Tracer = noopTracer{}

// otelTracer adapts an OpenTelemetry tracer to Tracer.
type otelTracer struct {
	tracer oteltrace.Tracer
}

// NewOTelTracer wraps provider's tracer for instrumentation under name. A
// nil provider falls back to the global provider set by
// otel.SetTracerProvider (or the OpenTelemetry no-op default if none was
// set), so callers can wire this up before a real exporter is configured.
func NewOTelTracer(provider oteltrace.TracerProvider, name string) Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	if name == "" {
		name = "secret-sync-controller"
	}
	return &otelTracer{tracer: provider.Tracer(name)}
}

// StartSpan implements Tracer.
func (t *otelTracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error)) {
	ctx, span := t.tracer.Start(ctx, name, oteltrace.WithAttributes(toAttributes(attrs)...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "")
			span.SetAttributes(attribute.String("error.message", err.Error()))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// OTLPConfig configures the OTLP gRPC exporter NewOTLPTracer builds a
// provider around.
type OTLPConfig struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
}

// NewOTLPTracer dials an OTLP gRPC collector at cfg.Endpoint and returns a
// Tracer backed by it plus a shutdown func to flush and close the exporter
// during process shutdown. An empty endpoint is a configuration error, not
// a signal to fall back to Noop — callers that want tracing optional should
// check the endpoint flag themselves before calling this.
func NewOTLPTracer(ctx context.Context, cfg OTLPConfig) (Tracer, func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return nil, nil, fmt.Errorf("otlp endpoint required")
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "secret-sync-controller"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res))
	otel.SetTracerProvider(provider)

	return NewOTelTracer(provider, serviceName), provider.Shutdown, nil
}

func toAttributes(attrs map[string]string) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		if k == "" {
			continue
		}
		out = append(out, attribute.String(k, v))
	}
	return out
}
