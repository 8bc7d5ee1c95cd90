package observability

import (
	"context"
	"time"

	"github.com/efebarandurmaz/medrag/internal/llm"
)

// InstrumentedProvider records a span and request metrics for every call
// made through the wrapped provider.
type InstrumentedProvider struct {
	inner   llm.Provider
	metrics *ServiceMetrics
}

// Instrument wraps p. A nil provider stays nil so callers keep their
// no-credential behavior; nil metrics record spans only.
func Instrument(p llm.Provider, m *ServiceMetrics) llm.Provider {
	if p == nil {
		return nil
	}
	return &InstrumentedProvider{inner: p, metrics: m}
}

func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

func (p *InstrumentedProvider) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	ctx, span := StartLLMSpan(ctx, p.inner.Name(), "complete")
	defer span.End()

	start := time.Now()
	resp, err := p.inner.Complete(ctx, prompt, opts)
	tokens := 0
	if resp != nil {
		RecordLLMResult(span, resp.Model, resp.InputTokens, resp.OutputTokens)
		tokens = resp.InputTokens + resp.OutputTokens
	}
	RecordError(span, err)
	if p.metrics != nil {
		p.metrics.RecordLLMRequest(time.Since(start), tokens, err)
	}
	return resp, err
}

func (p *InstrumentedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := StartLLMSpan(ctx, p.inner.Name(), "embed")
	defer span.End()

	out, err := p.inner.Embed(ctx, texts)
	RecordError(span, err)
	return out, err
}
