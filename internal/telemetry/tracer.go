// Package telemetry provides opt-in tracing and anonymous usage counters
// around the orchestrator's install/build/run/gc steps.
//
// Grounded on internal/telemetry/otel_plugin.go (OpenTelemetry wiring over
// otlptracehttp), minus its Genkit span-processor registration — asp has no
// Genkit runtime to register against, so the tracer provider here is set
// globally instead (see DESIGN.md).
package telemetry

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config controls whether and where traces are exported.
type Config struct {
	// Enabled turns on export; otherwise Tracer returns a no-op tracer.
	Enabled bool

	// Endpoint is the OTLP/HTTP collector address. Defaults to
	// OTEL_EXPORTER_OTLP_ENDPOINT, then http://localhost:4318.
	Endpoint string
}

// EnabledFromEnv reports whether tracing should be on absent an explicit
// --enable-telemetry flag, per ASP_OTEL_ENABLED=1.
func EnabledFromEnv() bool {
	return os.Getenv("ASP_OTEL_ENABLED") == "1"
}

var shutdownFn func(context.Context) error

// Setup configures the global tracer provider. Call once at startup; safe
// to call with Enabled: false, in which case Tracer() returns a no-op.
func Setup(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		return nil
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "http://localhost:4318"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName("asp"),
			semconv.ServiceVersion(version()),
		),
	)
	if err != nil {
		return err
	}

	spanProcessor := trace.NewBatchSpanProcessor(
		exporter,
		trace.WithBatchTimeout(5*time.Second),
		trace.WithMaxExportBatchSize(100),
	)

	provider := trace.NewTracerProvider(
		trace.WithSpanProcessor(spanProcessor),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	shutdownFn = provider.Shutdown
	return nil
}

// Shutdown flushes any pending spans. No-op if Setup was never called with
// Enabled: true.
func Shutdown(ctx context.Context) error {
	if shutdownFn == nil {
		return nil
	}
	return shutdownFn(ctx)
}

// Tracer returns the tracer orchestrator steps should use. It is a genuine
// no-op until Setup has been called with Enabled: true.
func Tracer() oteltrace.Tracer {
	return otel.Tracer("asp/orchestrator")
}

func version() string {
	if v := os.Getenv("OTEL_SERVICE_VERSION"); v != "" {
		return v
	}
	return "dev"
}
