package llmutil

import (
	"testing"

	"github.com/efebarandurmaz/medrag/internal/llm"
)

func TestRegisterDefaultProviders(t *testing.T) {
	f := llm.NewFactory()
	RegisterDefaultProviders(f)

	for _, name := range []string{"openrouter", "openai", "anthropic", "groq", "ollama", "custom"} {
		p, err := f.Create(llm.ProviderConfig{Provider: name, APIKey: "k", Model: "m"})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if p == nil {
			t.Fatalf("%s: expected provider", name)
		}
		if p.Name() != name {
			t.Errorf("%s: provider reports name %q", name, p.Name())
		}
	}
}
