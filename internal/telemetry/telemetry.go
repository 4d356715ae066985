// Package telemetry provides ambient OpenTelemetry tracing for the publish
// pipeline. It is a local, debug-only aid: spans are written by the
// stdouttrace exporter to a caller-supplied writer (the CLI passes stderr,
// keeping stdout for command output) when tracing is enabled, never to a
// remote collector —
// pkglab has no backend to send spans to and no Non-goal bars local
// diagnostics.
package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/pkglab/pkglab"

var tracer trace.Tracer = otel.Tracer(instrumentationName)

// Enable installs a tracer provider whose stdouttrace exporter writes to w
// and returns a shutdown function. Call it once, during start-up, only when
// --debug is set.
func Enable(w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(instrumentationName)
	return tp.Shutdown, nil
}

// Start opens a span for a pipeline stage (scan, fingerprint, pack,
// publish, install, propagate, ...). No-op (but still valid) when tracing
// was never enabled: the default global tracer provider is a no-op.
func Start(ctx context.Context, name string, attrs ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, attrs...)
}
