// Package llmtest provides a scriptable llm.Provider for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/efebarandurmaz/medrag/internal/llm"
)

// Provider is a scriptable llm.Provider. Complete returns Responses in order
// (the last one repeats); Err, when set, is returned instead.
type Provider struct {
	ProviderName string
	Responses    []*llm.Response
	Err          error
	EmbedFunc    func(texts []string) ([][]float32, error)

	mu      sync.Mutex
	prompts []*llm.Prompt
	opts    []*llm.RequestOptions
}

// Reply returns a Provider that always answers content.
func Reply(content string) *Provider {
	return &Provider{Responses: []*llm.Response{{Content: content, Model: "fake-model"}}}
}

// Failing returns a Provider whose every call fails with err.
func Failing(err error) *Provider {
	return &Provider{Err: err}
}

func (p *Provider) Complete(_ context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	p.opts = append(p.opts, opts)
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) == 0 {
		return &llm.Response{}, nil
	}
	i := len(p.prompts) - 1
	if i >= len(p.Responses) {
		i = len(p.Responses) - 1
	}
	resp := *p.Responses[i]
	return &resp, nil
}

func (p *Provider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	if p.EmbedFunc != nil {
		return p.EmbedFunc(texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "fake"
	}
	return p.ProviderName
}

// Calls returns the number of Complete calls made.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

// LastPrompt returns the prompt of the most recent Complete call, or nil.
func (p *Provider) LastPrompt() *llm.Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return nil
	}
	return p.prompts[len(p.prompts)-1]
}

// LastOptions returns the options of the most recent Complete call, or nil.
func (p *Provider) LastOptions() *llm.RequestOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.opts) == 0 {
		return nil
	}
	return p.opts[len(p.opts)-1]
}

var _ llm.Provider = (*Provider)(nil)
