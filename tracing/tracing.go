// Package tracing installs the global OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"log"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Version is stamped at build time with -ldflags "-X cityflow/neurotraff/tracing.Version=...".
var Version = "dev"

// Init exports spans over OTLP/HTTP when OTEL_EXPORTER_OTLP_ENDPOINT is set.
// Without it the global no-op provider stays in place. The returned func
// flushes and stops the exporter.
func Init(ctx context.Context, service string) (func(), error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return func() {}, nil
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		log.Printf("otlp exporter init failed, tracing disabled: %v", err)
		return func() {}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(Version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	log.Printf("tracing enabled service=%s", service)

	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("tracer provider shutdown: %v", err)
		}
	}, nil
}
