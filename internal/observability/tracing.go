// Package observability wires OpenTelemetry tracing into the Genkit
// TracerProvider so generation and embedding spans reach any OTLP
// collector (Jaeger, Grafana Tempo, a vendor agent on localhost:4318).
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config for the OTLP trace exporter.
type Config struct {
	// Endpoint is the OTLP HTTP collector address, e.g. "localhost:4318".
	// Empty disables tracing entirely.
	Endpoint string
	// ServiceName appears on every exported span.
	ServiceName string
}

// Setup registers an OTLP HTTP exporter with Genkit's TracerProvider and
// returns a shutdown function that flushes pending spans. An empty
// endpoint or an exporter construction failure degrades to a no-op; the
// application never refuses to start because a collector is missing.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if cfg.Endpoint == "" {
		return noop, nil
	}

	// Genkit's TracerProvider reads the service name from the standard
	// OTEL environment variable.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return noop, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled", "endpoint", cfg.Endpoint, "service", cfg.ServiceName)
	return tracing.TracerProvider().Shutdown, nil
}
