package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// disabled is the Provider used when observability.enabled is false. It
// leaves the otel globals untouched, so otelecho keeps its no-op tracer.
type disabled struct{}

func (disabled) TracerProvider() trace.TracerProvider {
	return noop.NewTracerProvider()
}

func (disabled) Shutdown(context.Context) error {
	return nil
}

func (disabled) ForceFlush(context.Context) error {
	return nil
}
