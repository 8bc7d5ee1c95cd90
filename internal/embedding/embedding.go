// Package embedding turns text into L2-normalized vectors.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/efebarandurmaz/medrag/internal/llm"
)

// Provider produces vector embeddings for text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Normalize scales v to unit length in place and returns it. Zero vectors are
// returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// LLMEmbedder embeds through a language model provider's embedding endpoint.
type LLMEmbedder struct {
	provider llm.Provider
	dim      int
}

// NewLLMEmbedder wraps provider. dim, when positive, is enforced on every vector.
func NewLLMEmbedder(provider llm.Provider, dim int) *LLMEmbedder {
	return &LLMEmbedder{provider: provider, dim: dim}
}

func (e *LLMEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *LLMEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.provider == nil {
		return nil, &llm.UpstreamError{Service: "embedding", Err: llm.ErrNotConfigured}
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vecs, err := e.provider.Embed(ctx, texts)
	if err != nil {
		return nil, llm.Upstream(e.provider.Name(), err)
	}
	if len(vecs) != len(texts) {
		return nil, &llm.UpstreamError{
			Service: e.provider.Name(),
			Message: fmt.Sprintf("embedding count mismatch: got %d, want %d", len(vecs), len(texts)),
		}
	}
	for i, v := range vecs {
		if e.dim > 0 && len(v) != e.dim {
			return nil, &llm.UpstreamError{
				Service: e.provider.Name(),
				Message: fmt.Sprintf("embedding dimension %d, want %d", len(v), e.dim),
			}
		}
		vecs[i] = Normalize(v)
	}
	return vecs, nil
}

func (e *LLMEmbedder) Dimensions() int { return e.dim }

var _ Provider = (*LLMEmbedder)(nil)
