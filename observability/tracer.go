package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures the kernel's tracer. Unlike the teacher's
// multi-exporter config, the kernel ships only the stdout exporter plus a
// no-op mode; NewTracer builds the stdout exporter directly.
type TracingConfig struct {
	Enabled      bool
	ServiceName  string
	SamplingRate float64
}

// SetDefaults fills in zero-valued fields with the kernel's defaults.
func (c *TracingConfig) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "relaykit-kernel"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1.0
	}
}

// Tracer wraps an OpenTelemetry tracer with the kernel's span helpers.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a Tracer from cfg. A disabled config returns a nil
// *Tracer whose methods are safe no-ops, mirroring the teacher's own
// "Enabled: false returns nil, nil" convention.
func NewTracer(ctx context.Context, cfg *TracingConfig) (*Tracer, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			attribute.String(AttrServiceName, cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, nil
}

// Start begins a span with the given name. Safe to call on a nil *Tracer.
func (t *Tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, spanName, opts...)
}

// StartCoordinatorStep begins the coordinator.step span (spec §5).
func (t *Tracer) StartCoordinatorStep(ctx context.Context, agentID, correlationID string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanCoordinatorStep,
		trace.WithAttributes(
			attribute.String(AttrAgentID, agentID),
			attribute.String(AttrCorrelationID, correlationID),
		),
	)
}

// StartToolDispatch begins the tool.dispatch span.
func (t *Tracer) StartToolDispatch(ctx context.Context, agentID, toolName, correlationID string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanToolDispatch,
		trace.WithAttributes(
			attribute.String(AttrAgentID, agentID),
			attribute.String(AttrToolName, toolName),
			attribute.String(AttrCorrelationID, correlationID),
		),
	)
}

// StartMemoryTransaction begins the memory.transaction span.
func (t *Tracer) StartMemoryTransaction(ctx context.Context, backend string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanMemoryTransaction, trace.WithAttributes(attribute.String(AttrMemoryBackend, backend)))
}

// StartMeshPublish begins the mesh.publish span.
func (t *Tracer) StartMeshPublish(ctx context.Context, topic, correlationID string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanMeshPublish,
		trace.WithAttributes(
			attribute.String(AttrMeshTopic, topic),
			attribute.String(AttrCorrelationID, correlationID),
		),
	)
}

// Shutdown flushes and stops the underlying tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

func noopSpan() trace.Span {
	_, span := trace.NewNoopTracerProvider().Tracer("noop").Start(context.Background(), "noop")
	return span
}
