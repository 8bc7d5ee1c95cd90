// Package query answers medical questions grounded in the knowledge base.
package query

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/efebarandurmaz/medrag/internal/embedding"
	"github.com/efebarandurmaz/medrag/internal/history"
	"github.com/efebarandurmaz/medrag/internal/llm"
	"github.com/efebarandurmaz/medrag/internal/observability"
	"github.com/efebarandurmaz/medrag/internal/vector"
)

// RefusalResponse is returned when no knowledge document matches.
const RefusalResponse = "I don't have enough medical information to answer your question. Please consult a healthcare professional."

// DefaultTopK is the number of documents retrieved when none is requested.
const DefaultTopK = 3

const (
	queryTemperature = 0.7
	queryMaxTokens   = 1500
	maxSourceLen     = 200
	unknownCondition = "Unknown"
)

const systemPrompt = `You are a helpful medical assistant AI. Your role is to provide information about symptoms, conditions, and general health advice based on the medical knowledge provided to you.

Important guidelines:
1. Always base your answers on the provided context/knowledge.
2. Be empathetic and clear in your responses.
3. Always recommend consulting a healthcare professional for proper diagnosis and treatment.
4. Never provide definitive diagnoses - only suggest possibilities.
5. If you don't have enough information, say so clearly.
6. Mention when symptoms require urgent medical attention.

Remember: You are providing general health information, not medical advice. Always encourage users to seek professional medical care.`

// Source is one knowledge document used for an answer.
type Source struct {
	Content        string  `json:"content"`
	Condition      string  `json:"condition"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Answer is the result of a knowledge-base question.
type Answer struct {
	Response string         `json:"response"`
	Sources  []Source       `json:"sources"`
	Model    string         `json:"model"`
	Usage    map[string]int `json:"usage"`
}

// Engine retrieves knowledge documents and asks the model for a grounded
// answer.
type Engine struct {
	provider    llm.Provider
	embedder    embedding.Provider
	repo        vector.Repository
	collection  string
	model       string
	topK        int
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// Config holds Engine settings. Zero values use the package defaults.
type Config struct {
	Collection  string   // knowledge collection
	Model       string   // reported model name when no model is called
	TopK        int      // documents retrieved when the caller asks for <= 0
	Temperature *float64 // sampling temperature (0.7 when nil)
	MaxTokens   int
}

// NewEngine creates an Engine. A nil provider means no model credential is
// configured.
func NewEngine(provider llm.Provider, embedder embedding.Provider, repo vector.Repository, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		provider:    provider,
		embedder:    embedder,
		repo:        repo,
		collection:  cfg.Collection,
		model:       cfg.Model,
		topK:        cfg.TopK,
		temperature: queryTemperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}
	if cfg.Temperature != nil {
		e.temperature = *cfg.Temperature
	}
	if e.topK <= 0 {
		e.topK = DefaultTopK
	}
	if e.maxTokens <= 0 {
		e.maxTokens = queryMaxTokens
	}
	return e
}

// Answer retrieves topK documents (the configured default when <= 0) and generates an
// answer. An empty result is a fixed refusal without a model call. Model and
// store failures are returned as *llm.UpstreamError.
func (e *Engine) Answer(ctx context.Context, question string, topK int) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, history.NewInputError("query", "must not be empty")
	}
	if topK <= 0 {
		topK = e.topK
	}

	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	docs, err := e.search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return &Answer{Response: RefusalResponse, Sources: []Source{}, Model: e.model}, nil
	}

	if e.provider == nil {
		return nil, &llm.UpstreamError{Service: "llm", Err: llm.ErrNotConfigured}
	}
	resp, err := e.provider.Complete(ctx, BuildPrompt(question, docs), llm.NewRequestOptions(e.temperature, e.maxTokens))
	if err != nil {
		return nil, llm.Upstream(e.provider.Name(), err)
	}

	model := resp.Model
	if model == "" {
		model = e.model
	}
	e.logger.Debug("query answered", zap.Int("sources", len(docs)), zap.String("model", model))
	return &Answer{
		Response: llm.StripThinkingTags(resp.Content),
		Sources:  Sources(docs),
		Model:    model,
		Usage:    resp.Usage(),
	}, nil
}

func (e *Engine) search(ctx context.Context, vec []float32, topK int) ([]vector.SearchResult, error) {
	ctx, span := observability.StartRetrievalSpan(ctx, e.collection, topK)
	defer span.End()
	docs, err := e.repo.Search(ctx, e.collection, vec, topK, nil)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("searching knowledge base: %w", err)
	}
	observability.RecordRetrievalResult(span, len(docs))
	return docs, nil
}

// BuildPrompt composes the grounded question prompt from full document content.
func BuildPrompt(question string, docs []vector.SearchResult) *llm.Prompt {
	blocks := make([]string, len(docs))
	for i, d := range docs {
		blocks[i] = "--- Medical Information ---\n" + d.Content
	}
	user := fmt.Sprintf(`Based on the following medical knowledge, please help answer the user's question.

MEDICAL KNOWLEDGE:
%s

USER'S QUESTION: %s

Please provide a helpful, informative response based on the knowledge above. Remember to recommend consulting a healthcare professional.`,
		strings.Join(blocks, "\n\n"), question)
	return llm.NewPrompt(systemPrompt, user)
}

// Sources converts retrieved documents into truncated sources.
func Sources(docs []vector.SearchResult) []Source {
	out := make([]Source, len(docs))
	for i, d := range docs {
		out[i] = Source{
			Content:        truncate(d.Content, maxSourceLen),
			Condition:      condition(d.Payload),
			RelevanceScore: float64(d.Score),
		}
	}
	return out
}

func condition(payload map[string]any) string {
	if c := vector.String(payload["condition"]); c != "" {
		return c
	}
	if meta, ok := payload["metadata"].(map[string]any); ok {
		if c := vector.String(meta["condition"]); c != "" {
			return c
		}
	}
	return unknownCondition
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
