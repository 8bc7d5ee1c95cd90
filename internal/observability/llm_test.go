package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/efebarandurmaz/medrag/internal/llm"
	"github.com/efebarandurmaz/medrag/internal/llm/llmtest"
)

func TestInstrument_NilProvider(t *testing.T) {
	if p := Instrument(nil, NewServiceMetrics()); p != nil {
		t.Fatalf("expected nil provider, got %T", p)
	}
}

func TestInstrumentedProvider_Complete(t *testing.T) {
	rec := recordSpans(t)
	m := NewServiceMetrics()
	fake := &llmtest.Provider{
		ProviderName: "openrouter",
		Responses:    []*llm.Response{{Content: "ok", Model: "m", InputTokens: 10, OutputTokens: 5}},
	}
	p := Instrument(fake, m)

	resp, err := p.Complete(context.Background(), llm.NewPrompt("sys", "user"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if m.LLMRequestsTotal.Value() != 1 || m.LLMTokensTotal.Value() != 15 {
		t.Fatalf("unexpected metrics: requests=%f tokens=%f", m.LLMRequestsTotal.Value(), m.LLMTokensTotal.Value())
	}
	ended := rec.Ended()
	if len(ended) != 1 || ended[0].Name() != "llm.complete" {
		t.Fatalf("expected one llm.complete span, got %d", len(ended))
	}
	if p.Name() != "openrouter" {
		t.Fatalf("expected wrapped name, got %s", p.Name())
	}
}

func TestInstrumentedProvider_Error(t *testing.T) {
	m := NewServiceMetrics()
	p := Instrument(llmtest.Failing(errors.New("boom")), m)

	if _, err := p.Complete(context.Background(), llm.NewPrompt("", "q"), nil); err == nil {
		t.Fatal("expected error")
	}
	if _, err := p.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected embed error")
	}
	if m.LLMErrorsTotal.Value() != 1 {
		t.Fatalf("expected 1 error, got %f", m.LLMErrorsTotal.Value())
	}
}
