package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type TraceConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		ServiceName: "beacon",
		Environment: "dev",
	}
}

// Tracer starts spans. A disabled tracer hands out no-op spans.
type Tracer struct {
	tracer   oteltrace.Tracer
	tp       oteltrace.TracerProvider
	provider *sdktrace.TracerProvider // owned; flushed by Shutdown
}

func NewTracer(cfg TraceConfig, version string) (*Tracer, error) {
	if !cfg.Enabled {
		return NoopTracer(), nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("init stdouttrace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(version),
			attribute.String("environment", cfg.Environment),
		)),
	)
	otel.SetTracerProvider(tp)

	return &Tracer{tracer: tp.Tracer(cfg.ServiceName), tp: tp, provider: tp}, nil
}

func NoopTracer() *Tracer {
	tp := noop.NewTracerProvider()
	return &Tracer{tracer: tp.Tracer("beacon"), tp: tp}
}

// TracerFromProvider wraps a provider the caller owns. Shutdown leaves it
// running.
func TracerFromProvider(tp oteltrace.TracerProvider, name string) *Tracer {
	return &Tracer{tracer: tp.Tracer(name), tp: tp}
}

// Provider is handed to transport instrumentation so request spans and
// service spans share one pipeline.
func (t *Tracer) Provider() oteltrace.TracerProvider {
	return t.tp
}

func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	ctx, span := t.tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// Shutdown flushes pending spans. No-op for a disabled tracer.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
