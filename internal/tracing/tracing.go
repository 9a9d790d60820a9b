// Package tracing sets up the OTLP-over-HTTP trace exporter and exposes
// the helpers node execution and transaction handling use to emit spans.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures the trace exporter.
type Config struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// Provider wraps an sdktrace.TracerProvider for lifecycle management. A
// nil *Provider is valid and hands back a no-op tracer everywhere.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider builds a Provider from cfg. Returns (nil, nil) when tracing
// is disabled, matching the shape callers use for the metrics provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("merge trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp, tracer: tp.Tracer(cfg.ServiceName)}, nil
}

// Tracer returns the provider's tracer, or a no-op tracer for a nil
// Provider.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// Shutdown flushes and stops the underlying TracerProvider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// StartNodeSpan starts a span covering one node execution attempt.
func StartNodeSpan(ctx context.Context, tracer trace.Tracer, executionID, nodeID, nodeType string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "node.execute",
		trace.WithAttributes(
			attribute.String("execution_id", executionID),
			attribute.String("node_id", nodeID),
			attribute.String("node_type", nodeType),
		))
}

// StartTransactionSpan starts a span covering one node's transactional
// unit of work.
func StartTransactionSpan(ctx context.Context, tracer trace.Tracer, executionID, nodeID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "node.transaction",
		trace.WithAttributes(
			attribute.String("execution_id", executionID),
			attribute.String("node_id", nodeID),
		))
}

// RecordError records err on span, if non-nil, and marks it failed.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
