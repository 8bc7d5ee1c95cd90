// Package observability provides OpenTelemetry tracing, Prometheus-style
// metrics and audit logging for medrag.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name used for the medrag tracer.
	TracerName = "github.com/efebarandurmaz/medrag"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	// ServiceName is the name of the service (default: "medrag")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, prod)
	Environment string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// Insecure disables TLS towards the collector.
	Insecure bool

	// SampleRate is the trace sampling rate (0.0 to 1.0, default: 1.0)
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "medrag",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "medrag"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

// Shutdown flushes pending spans and stops the exporter.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Span kinds recorded under medrag.span.kind.
const (
	SpanKindRetrieval = "retrieval"
	SpanKindLLM       = "llm"
	SpanKindIngest    = "ingest"
	SpanKindInsight   = "insight"
	SpanKindQuery     = "query"
	SpanKindKnowledge = "knowledge"
)

func start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
}

// StartRetrievalSpan starts a span for a vector store lookup.
func StartRetrievalSpan(ctx context.Context, collection string, limit int) (context.Context, trace.Span) {
	return start(ctx, "retrieval."+collection, trace.SpanKindClient,
		attribute.String("medrag.span.kind", SpanKindRetrieval),
		attribute.String("retrieval.collection", collection),
		attribute.Int("retrieval.limit", limit),
	)
}

// RecordRetrievalResult records how many hits a lookup returned.
func RecordRetrievalResult(span trace.Span, hits int) {
	span.SetAttributes(attribute.Int("retrieval.hits", hits))
}

// StartLLMSpan starts a span for an LLM call.
func StartLLMSpan(ctx context.Context, provider, purpose string) (context.Context, trace.Span) {
	return start(ctx, "llm.complete", trace.SpanKindClient,
		attribute.String("medrag.span.kind", SpanKindLLM),
		attribute.String("llm.provider", provider),
		attribute.String("llm.purpose", purpose),
	)
}

// RecordLLMResult records the model and token counts of a completion.
func RecordLLMResult(span trace.Span, model string, inputTokens, outputTokens int) {
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.input_tokens", inputTokens),
		attribute.Int("llm.output_tokens", outputTokens),
		attribute.Int("llm.total_tokens", inputTokens+outputTokens),
	)
}

// StartQuerySpan starts a span for a knowledge base question.
func StartQuerySpan(ctx context.Context, topK int) (context.Context, trace.Span) {
	return start(ctx, "query.answer", trace.SpanKindInternal,
		attribute.String("medrag.span.kind", SpanKindQuery),
		attribute.Int("query.top_k", topK),
	)
}

// StartIngestSpan starts a span for prescription ingestion.
func StartIngestSpan(ctx context.Context, patientID string) (context.Context, trace.Span) {
	return start(ctx, "history.ingest", trace.SpanKindInternal,
		attribute.String("medrag.span.kind", SpanKindIngest),
		attribute.String("patient.id", patientID),
	)
}

// StartInsightSpan starts a span for history insight generation.
func StartInsightSpan(ctx context.Context, patientID string, topK int) (context.Context, trace.Span) {
	return start(ctx, "history.insight", trace.SpanKindInternal,
		attribute.String("medrag.span.kind", SpanKindInsight),
		attribute.String("patient.id", patientID),
		attribute.Int("insight.top_k", topK),
	)
}

// RecordInsightResult records the evidence size and whether the local
// fallback produced the answer.
func RecordInsightResult(span trace.Span, evidence int, fallback bool) {
	span.SetAttributes(
		attribute.Int("insight.evidence", evidence),
		attribute.Bool("insight.fallback", fallback),
	)
}

// StartKnowledgeSpan starts a span for a knowledge base reload.
func StartKnowledgeSpan(ctx context.Context, collection string) (context.Context, trace.Span) {
	return start(ctx, "knowledge.reload", trace.SpanKindInternal,
		attribute.String("medrag.span.kind", SpanKindKnowledge),
		attribute.String("knowledge.collection", collection),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
