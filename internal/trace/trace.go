// Package trace installs the process-wide OpenTelemetry tracer provider,
// patterned on the tracer setup inlined in the donor's cmd/ployzd/main.go.
// No exporter or span processor is configured, so spans are recorded but
// never exported.
package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the name under which challd's own spans are recorded.
const Tracer = "challd"

// Setup installs a tracer provider as the global default and returns a
// shutdown func to be deferred by the caller.
func Setup() (shutdown func(context.Context) error) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// Start begins a span named name using the global tracer provider, with the
// given attributes attached at start time.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(Tracer).Start(ctx, name, trace.WithAttributes(attrs...))
}
