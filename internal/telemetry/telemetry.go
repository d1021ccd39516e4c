// Package telemetry is the optional OpenTelemetry tracing seam for the
// allocator engines: exporter/provider wiring with no HTTP request spans
// (there is no HTTP surface in this module), span names scoped to each
// engine's own operations.
//
// Nothing in align, slab, arena, or pool calls into this package directly —
// engines never block or allocate on the hot path, and a tracing call is
// neither free nor lock-free. Instead, slab/arena/pool each expose a package
// level Observer hook, nil by default, invoked only around New/Destroy (and
// Pool.Borrow); Hook below is the adapter a host installs into that seam
// when it wants allocator lifecycle events visible in its trace pipeline.
package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName    = "memengine"
	serviceVersion = "1.0.0"
)

var tracerProvider *tracesdk.TracerProvider

// Init wires a Jaeger exporter into the global OpenTelemetry tracer
// provider. A host that never calls Init simply never gets spans: every
// other function in this package degrades to no-ops against the global
// no-op tracer OpenTelemetry installs by default.
func Init(jaegerEndpoint string) error {
	if jaegerEndpoint == "" {
		jaegerEndpoint = "http://jaeger:14268/api/traces"
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return fmt.Errorf("telemetry: failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("telemetry: failed to create resource: %w", err)
	}

	tracerProvider = tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)

	log.Printf("telemetry: Jaeger tracing initialized: %s", jaegerEndpoint)
	return nil
}

// Shutdown gracefully shuts down the tracer provider, if one was installed.
func Shutdown(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns a tracer scoped to the given engine ("slab", "arena",
// "pool").
func Tracer(engine string) trace.Tracer {
	return otel.Tracer(fmt.Sprintf("%s/%s", serviceName, engine))
}

// StartSpan starts a span for one allocator operation (e.g.
// "slab.create", "pool.borrow") with the given attributes attached.
func StartSpan(ctx context.Context, tracer trace.Tracer, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, operation)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// RecordError records err on the span active in ctx, if any.
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
	}
}

// Hook builds an observer function for the given engine ("slab", "arena",
// "pool"), suitable for installing directly into that package's Observer
// variable. Each call opens and immediately closes a span named
// "memengine.<engine>.<operation>" — e.g. "memengine.slab.create",
// "memengine.pool.borrow" — recording err on it when non-nil. With no call
// to Init, Tracer resolves to the global no-op tracer, so installing this
// hook costs a no-op span start/end rather than nothing; a host that wants
// zero overhead simply never installs it.
func Hook(engine string) func(operation string, err error) {
	tracer := Tracer(engine)
	return func(operation string, err error) {
		ctx, span := StartSpan(context.Background(), tracer, fmt.Sprintf("%s.%s.%s", serviceName, engine, operation))
		if err != nil {
			RecordError(ctx, err)
		}
		span.End()
	}
}
