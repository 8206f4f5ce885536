// Package tracing wires up OpenTelemetry tracing for the gateway,
// grounded on gateway-runtime/policy-engine/internal/tracing.InitTracer,
// trimmed to a local always-on sampler (no OTLP exporter dependency beyond
// go.opentelemetry.io/otel/sdk already in the domain stack) since this
// gateway has no external collector wired in spec.md's scope.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config controls whether tracing spans are recorded at all.
type Config struct {
	Enabled     bool
	ServiceName string
}

// Init installs a global TracerProvider: a sampling provider when enabled,
// or otel's no-op provider otherwise. The returned shutdown func flushes
// and releases provider resources.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
