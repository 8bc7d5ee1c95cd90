package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/efebarandurmaz/medrag/internal/llm"
	"github.com/efebarandurmaz/medrag/internal/llm/llmtest"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize = %v", v)
	}
	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

func TestLLMEmbedderNormalizes(t *testing.T) {
	p := &llmtest.Provider{EmbedFunc: func(texts []string) ([][]float32, error) {
		return [][]float32{{3, 4}, {0, 2}}, nil
	}}
	e := NewLLMEmbedder(p, 2)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vecs {
		if math.Abs(norm(v)-1) > 1e-6 {
			t.Errorf("vector %d norm = %f", i, norm(v))
		}
	}
}

func TestLLMEmbedderErrors(t *testing.T) {
	var ue *llm.UpstreamError

	_, err := NewLLMEmbedder(nil, 2).Embed(context.Background(), "x")
	if !errors.As(err, &ue) || !errors.Is(err, llm.ErrNotConfigured) {
		t.Errorf("nil provider err = %v", err)
	}

	_, err = NewLLMEmbedder(llmtest.Failing(errors.New("down")), 2).Embed(context.Background(), "x")
	if !errors.As(err, &ue) {
		t.Errorf("failing provider err = %v", err)
	}

	wrongDim := &llmtest.Provider{EmbedFunc: func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 2, 3}}, nil
	}}
	_, err = NewLLMEmbedder(wrongDim, 2).Embed(context.Background(), "x")
	if !errors.As(err, &ue) {
		t.Errorf("dimension mismatch err = %v", err)
	}

	short := &llmtest.Provider{EmbedFunc: func(texts []string) ([][]float32, error) {
		return nil, nil
	}}
	_, err = NewLLMEmbedder(short, 0).EmbedBatch(context.Background(), []string{"x"})
	if !errors.As(err, &ue) {
		t.Errorf("count mismatch err = %v", err)
	}
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()
	a1, _ := e.Embed(ctx, "persistent dry cough and fever")
	a2, _ := e.Embed(ctx, "persistent dry cough and fever")
	b, _ := e.Embed(ctx, "fever with cough")
	c, _ := e.Embed(ctx, "fractured tibia cast")

	if len(a1) != 64 || e.Dimensions() != 64 {
		t.Fatalf("dim = %d", len(a1))
	}
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatal("embedding not deterministic")
		}
	}
	if math.Abs(norm(a1)-1) > 1e-5 {
		t.Errorf("norm = %f", norm(a1))
	}
	if dot(a1, b) <= dot(a1, c) {
		t.Errorf("overlapping text should be closer: %f <= %f", dot(a1, b), dot(a1, c))
	}
	empty, _ := e.Embed(ctx, "")
	if norm(empty) != 0 {
		t.Error("empty text should embed to zero vector")
	}
}

func TestHashEmbedderDefaultDim(t *testing.T) {
	if NewHashEmbedder(0).Dimensions() != 768 {
		t.Error("default dimension should be 768")
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
