// Package tracing wires OpenTelemetry for toolflow runs.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName is the tracer scope used by every toolflow span.
const InstrumentationName = "github.com/hugo-lorenzo-mato/toolflow"

// Span attribute keys.
const (
	AttrRunID    = attribute.Key("toolflow.run_id")
	AttrWorkflow = attribute.Key("toolflow.workflow")
	AttrTool     = attribute.Key("toolflow.tool")
	AttrBatch    = attribute.Key("toolflow.batch")
	AttrAttempt  = attribute.Key("toolflow.attempt")
	AttrStatus   = attribute.Key("toolflow.status")
)

// Tracer returns the toolflow tracer from tp, falling back to the global
// provider when tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}

// Config selects whether and where spans are exported.
type Config struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// Provider owns the tracer provider for the process lifetime.
type Provider struct {
	tp       trace.TracerProvider
	shutdown func(context.Context) error
}

// Setup builds a provider from cfg. A disabled config yields a no-op
// provider so callers never branch on tracing being on.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			tp:       noop.NewTracerProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	tp, err := NewTracerProvider(ctx, cfg.Endpoint, cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("creating tracer provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Provider{tp: tp, shutdown: tp.Shutdown}, nil
}

// NewTracerProvider creates a TracerProvider exporting spans via OTLP/HTTP.
// The caller is responsible for shutting it down.
func NewTracerProvider(ctx context.Context, endpoint, serviceName string) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{}
	if endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// TracerProvider returns the configured provider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tp
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}
