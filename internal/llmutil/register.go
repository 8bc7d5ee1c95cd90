// Package llmutil wires the built-in LLM provider constructors.
package llmutil

import (
	"github.com/efebarandurmaz/medrag/internal/llm"
	"github.com/efebarandurmaz/medrag/internal/llm/anthropic"
	"github.com/efebarandurmaz/medrag/internal/llm/openai"
)

// RegisterDefaultProviders registers all built-in LLM provider constructors
// (anthropic and every OpenAI-compatible preset, OpenRouter included) into
// factory. Both cmd/medrag and cmd/worker call this.
func RegisterDefaultProviders(factory *llm.ProviderFactory) {
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	for _, p := range []struct{ name, url string }{
		{"openrouter", llm.KnownProviders["openrouter"]},
		{"openai", llm.KnownProviders["openai"]},
		{"groq", llm.KnownProviders["groq"]},
		{"ollama", llm.KnownProviders["ollama"]},
		{"together", llm.KnownProviders["together"]},
		{"deepseek", llm.KnownProviders["deepseek"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel,
				openai.WithName(p.name),
				openai.WithHeaders(c.Headers),
			), nil
		})
	}
}
