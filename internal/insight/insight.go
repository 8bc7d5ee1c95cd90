// Package insight correlates a patient's symptoms with their ranked history
// through a language model, falling back to a local summary when the model
// is unavailable.
package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/efebarandurmaz/medrag/internal/history"
	"github.com/efebarandurmaz/medrag/internal/llm"
)

// FallbackModel marks responses synthesized without the language model.
const FallbackModel = "local-fallback"

// NoHistoryResponse is returned when the patient has no stored records.
const NoHistoryResponse = "No prior history is available for this patient, so no correlation with the reported symptoms can be made. Please consult a healthcare professional."

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 900
	maxReasonLen       = 180
	maxRawTextLen      = 200
)

// Result is the outcome of one insight request.
type Result struct {
	Response    string               `json:"response"`
	Model       string               `json:"model"`
	Usage       map[string]int       `json:"usage"`
	HistoryUsed []history.ScoredItem `json:"history_used"`

	// Reason is the sanitized upstream failure behind a fallback result.
	Reason string `json:"-"`
}

// Fallback reports whether r was produced without the language model.
func (r *Result) Fallback() bool { return r.Model == FallbackModel }

// NoHistory returns the fixed result for a patient without records.
func NoHistory() *Result {
	return &Result{Response: NoHistoryResponse, Model: FallbackModel, HistoryUsed: []history.ScoredItem{}}
}

// Outcome is the explicit result of a model call: either a completion or an
// upstream failure.
type Outcome struct {
	Completion *llm.Response
	Err        *llm.UpstreamError
}

// Generator produces insight results.
type Generator struct {
	provider    llm.Provider
	logger      *zap.Logger
	temperature float64
	maxTokens   int
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithSampling overrides temperature and max tokens.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(g *Generator) {
		g.temperature = temperature
		g.maxTokens = maxTokens
	}
}

// NewGenerator creates a Generator. A nil provider means no model credential
// is configured; every result then uses the fallback.
func NewGenerator(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		provider:    provider,
		logger:      zap.NewNop(),
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate never fails: an upstream problem turns into a fallback result
// that still carries the evidence.
func (g *Generator) Generate(ctx context.Context, symptoms string, items []history.ScoredItem) *Result {
	if items == nil {
		items = []history.ScoredItem{}
	}
	out := g.Complete(ctx, BuildPrompt(symptoms, items))
	if out.Err != nil {
		g.logger.Warn("insight model unavailable, using local fallback",
			zap.String("service", out.Err.Service),
			zap.Int("status", out.Err.StatusCode),
			zap.Error(out.Err),
		)
		return &Result{
			Response:    FallbackMessage(out.Err.Error(), symptoms, items),
			Model:       FallbackModel,
			HistoryUsed: items,
			Reason:      SanitizeReason(out.Err.Error()),
		}
	}
	return &Result{
		Response:    out.Completion.Content,
		Model:       out.Completion.Model,
		Usage:       out.Completion.Usage(),
		HistoryUsed: items,
	}
}

// Complete calls the model and classifies the result. A completion with no
// text after reasoning tags are stripped counts as an upstream failure.
func (g *Generator) Complete(ctx context.Context, prompt *llm.Prompt) Outcome {
	if g.provider == nil {
		return Outcome{Err: &llm.UpstreamError{Service: "llm", Err: llm.ErrNotConfigured}}
	}
	resp, err := g.provider.Complete(ctx, prompt, llm.NewRequestOptions(g.temperature, g.maxTokens))
	if err != nil {
		return Outcome{Err: asUpstream(g.provider.Name(), err)}
	}
	if resp == nil {
		return Outcome{Err: &llm.UpstreamError{Service: g.provider.Name(), Message: "empty completion"}}
	}
	content := llm.StripThinkingTags(resp.Content)
	if content == "" {
		return Outcome{Err: &llm.UpstreamError{Service: g.provider.Name(), Message: "empty completion"}}
	}
	completion := *resp
	completion.Content = content
	if completion.Model == "" {
		completion.Model = g.provider.Name()
	}
	return Outcome{Completion: &completion}
}

func asUpstream(service string, err error) *llm.UpstreamError {
	var ue *llm.UpstreamError
	if errors.As(err, &ue) {
		return ue
	}
	return &llm.UpstreamError{Service: service, Err: err}
}

// SanitizeReason flattens newlines and truncates reason to 180 characters.
func SanitizeReason(reason string) string {
	reason = strings.Join(strings.Fields(reason), " ")
	if r := []rune(reason); len(r) > maxReasonLen {
		reason = string(r[:maxReasonLen])
	}
	return reason
}

// FallbackMessage renders the local summary used when the model fails. It
// echoes symptoms verbatim and lists one bullet per item in the given order.
func FallbackMessage(reason, symptoms string, items []history.ScoredItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The language model is currently unavailable (%s), so this is a summary of the stored history rather than an analysis.\n\n", SanitizeReason(reason))
	fmt.Fprintf(&b, "Reported symptoms: %s\n\n", symptoms)
	if len(items) == 0 {
		b.WriteString("No prior history records were found.\n")
	} else {
		b.WriteString("Relevant history, most relevant first:\n")
		for _, it := range items {
			fmt.Fprintf(&b, "- %s | chronic: %s | diagnoses: %s | medicines: %s\n",
				orDash(it.Date), yesNo(it.IsChronic), joinOr(it.Diagnosis, "unknown"), joinOr(it.Medicines, "unspecified"))
		}
	}
	b.WriteString("\nPlease review these records with a healthcare professional.")
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "unknown date"
	}
	return s
}

func joinOr(list []string, empty string) string {
	if len(list) == 0 {
		return empty
	}
	return strings.Join(list, ", ")
}
