// Package telemetry installs the process-wide OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/khizarrm/outreach/internal/config"
)

// ServiceName identifies this process in exported spans.
const ServiceName = "outreach"

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// Init installs a tracer provider exporting spans to stderr when
// cfg.Stdout is set. Otherwise the global no-op provider stays in place and
// the returned Shutdown does nothing.
func Init(cfg config.TelemetryConfig, version string) (Shutdown, error) {
	if !cfg.Stdout {
		return func(context.Context) error { return nil }, nil
	}
	tp, err := newProvider(os.Stderr, version)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newProvider(w io.Writer, version string) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, eris.Wrap(err, "telemetry: create stdout exporter")
	}
	res := resource.NewWithAttributes("",
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", version),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}
