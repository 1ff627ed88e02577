// Package observability implements RANTS' distributed tracing, grounded on
// the teacher's internal/observability.Tracer: spans exported over OTLP/gRPC
// when an endpoint is configured, a safe no-op otherwise. Carried forward as
// an ambient concern the same way C8's Prometheus metrics are — the spec's
// Non-goals exclude feature surfaces, not operational visibility into the
// seams RANTS already has (an LLM request, a tool execution, a store query).
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceConfig configures the distributed tracing behavior (spec §6's
// ambient config surface, SPEC_FULL.md observability.tracing).
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP/gRPC collector endpoint. If empty, tracing is
	// disabled and NewTracer returns a no-op Tracer.
	Endpoint       string
	SamplingRate   float64
	EnableInsecure bool
}

// SpanOptions configures span creation behavior.
type SpanOptions struct {
	Kind       trace.SpanKind
	Attributes []attribute.KeyValue
}

// Tracer wraps an OpenTelemetry trace.Tracer. A nil *Tracer (the zero value
// of an unset field) is a valid no-op: every method on it is safe to call
// and produces no spans, so callers that don't wire tracing at all (most
// existing tests) need no special-casing.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer creates a tracer per config and a shutdown function that must be
// called on process exit. If config.Endpoint is empty, or the OTLP exporter
// cannot be constructed, a no-op tracer is returned instead of failing
// startup — tracing is an operational aid, not a correctness dependency.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	noop := func(context.Context) error { return nil }
	if config.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(serviceNameOrDefault(config))}, noop
	}
	if config.SamplingRate == 0 {
		config.SamplingRate = 1.0
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
	if config.EnableInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return &Tracer{tracer: otel.Tracer(serviceNameOrDefault(config))}, noop
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceNameOrDefault(config)),
		semconv.ServiceVersion(config.ServiceVersion),
	}
	if config.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(config.Environment))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)

	t := &Tracer{provider: provider, tracer: provider.Tracer(serviceNameOrDefault(config))}
	return t, provider.Shutdown
}

func serviceNameOrDefault(config TraceConfig) string {
	if config.ServiceName == "" {
		return "rants"
	}
	return config.ServiceName
}

// Start creates a new span and returns a context carrying it. Safe to call
// on a nil Tracer — returns ctx unchanged with a non-recording span.
func (t *Tracer) Start(ctx context.Context, name string, opts ...SpanOptions) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	var startOpts []trace.SpanStartOption
	if len(opts) > 0 {
		if opts[0].Kind != 0 {
			startOpts = append(startOpts, trace.WithSpanKind(opts[0].Kind))
		}
		if len(opts[0].Attributes) > 0 {
			startOpts = append(startOpts, trace.WithAttributes(opts[0].Attributes...))
		}
	}
	return t.tracer.Start(ctx, name, startOpts...)
}

// RecordError records err on span and marks it as failed. No-op if err or
// span is nil.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes sets key/value pairs on span, skipping non-string keys.
func (t *Tracer) SetAttributes(span trace.Span, keyvals ...any) {
	if span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, attributeFromValue(key, keyvals[i+1]))
	}
	span.SetAttributes(attrs...)
}

// TraceLLMRequest starts a client span around one Model Backend Port call
// (C3), grounded on the teacher's TracingPlugin.startIterSpan / Tracer's own
// TraceLLMRequest.
func (t *Tracer) TraceLLMRequest(ctx context.Context, role, model string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("llm.%s", role), SpanOptions{
		Kind: trace.SpanKindClient,
		Attributes: []attribute.KeyValue{
			attribute.String("llm.role", role),
			attribute.String("llm.model", model),
		},
	})
}

// TraceToolExecution starts an internal span around one tool's Execute call
// (C2/C6 dispatch), grounded on the teacher's
// TracingPlugin.startToolSpan/TraceToolExecution.
func (t *Tracer) TraceToolExecution(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("tool.%s", toolName), SpanOptions{
		Kind:       trace.SpanKindInternal,
		Attributes: []attribute.KeyValue{attribute.String("tool.name", toolName)},
	})
}

// TraceDatabaseQuery starts a client span around one Transcript Store
// operation (C1), grounded on the teacher's Tracer.TraceDatabaseQuery.
func (t *Tracer) TraceDatabaseQuery(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	return t.Start(ctx, fmt.Sprintf("db.%s", operation), SpanOptions{
		Kind: trace.SpanKindClient,
		Attributes: []attribute.KeyValue{
			attribute.String("db.operation", operation),
			attribute.String("db.table", table),
		},
	})
}

func attributeFromValue(key string, val any) attribute.KeyValue {
	switch v := val.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
