package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/efebarandurmaz/medrag/internal/llm"
	"github.com/efebarandurmaz/medrag/internal/observability"
)

const structurerSystemPrompt = `You convert prescription text into structured data.
Respond with a single JSON object and nothing else: no prose, no markdown.
The object must have exactly these fields:
  "diagnosis": array of strings, the diagnosed conditions
  "medicines": array of strings, each medicine with dose and frequency if given
  "is_chronic": boolean, true if any condition is long-term or ongoing
  "date": string in YYYY-MM-DD format, or null if the text has no date
  "doctor_notes": string with advice or follow-up instructions, or null
  "raw_text": string, the input text unchanged
Do not invent information that is not in the text.`

const (
	structurerMaxTokens = 800
	maxEchoedOutput     = 500
)

// Structurer extracts an Extraction from prescription text with a language
// model held to a strict JSON contract.
type Structurer struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewStructurer creates a Structurer. A nil provider means no model
// credential is configured.
func NewStructurer(provider llm.Provider, logger *zap.Logger) *Structurer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Structurer{provider: provider, logger: logger}
}

// Structure returns an *InputError for empty text, an *llm.UpstreamError when
// the model call fails and a *StructuringError when its output is not the
// required shape.
func (s *Structurer) Structure(ctx context.Context, rawText string) (*Extraction, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, NewInputError("raw_text", "prescription text is empty")
	}
	if s.provider == nil {
		return nil, &llm.UpstreamError{Service: "llm", Err: llm.ErrNotConfigured}
	}

	resp, err := s.provider.Complete(ctx,
		llm.NewPrompt(structurerSystemPrompt, "Prescription text:\n"+rawText),
		llm.NewRequestOptions(0, structurerMaxTokens),
	)
	if err != nil {
		return nil, llm.Upstream(s.provider.Name(), err)
	}

	ex, err := ParseExtraction(resp.Content)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		var se *StructuringError
		if errors.As(err, &se) && se.Output != "" {
			fields = append(fields, zap.String("output", observability.Redact(se.Output)))
		}
		s.logger.Warn("prescription structuring rejected", fields...)
		return nil, err
	}
	ex.RawText = rawText
	return ex, nil
}

// wireExtraction distinguishes absent fields from present ones during
// strict decoding.
type wireExtraction struct {
	Diagnosis   *[]string `json:"diagnosis"`
	Medicines   *[]string `json:"medicines"`
	IsChronic   *bool     `json:"is_chronic"`
	Date        *string   `json:"date"`
	DoctorNotes *string   `json:"doctor_notes"`
	RawText     *string   `json:"raw_text"`
}

// ParseExtraction decodes model output into an Extraction. Reasoning tags and
// a surrounding markdown fence are removed; anything else besides exactly one
// JSON object with the known fields yields a *StructuringError. Absent or
// null lists default to empty and is_chronic to false.
func ParseExtraction(output string) (*Extraction, error) {
	text := strings.TrimSpace(llm.StripMarkdownFences(llm.StripThinkingTags(output)))
	if text == "" {
		return nil, &StructuringError{Reason: "empty model output"}
	}
	if !strings.HasPrefix(text, "{") {
		return nil, &StructuringError{Reason: "output is not a JSON object", Output: truncate(text, maxEchoedOutput)}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	var w wireExtraction
	if err := dec.Decode(&w); err != nil {
		return nil, &StructuringError{Reason: "invalid extraction JSON", Output: truncate(text, maxEchoedOutput), Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &StructuringError{Reason: "trailing data after JSON object", Output: truncate(text, maxEchoedOutput)}
	}

	ex := &Extraction{
		Diagnosis: []string{},
		Medicines: []string{},
	}
	if w.Diagnosis != nil {
		ex.Diagnosis = cleanList(*w.Diagnosis)
	}
	if w.Medicines != nil {
		ex.Medicines = cleanList(*w.Medicines)
	}
	if w.IsChronic != nil {
		ex.IsChronic = *w.IsChronic
	}
	if w.Date != nil && strings.TrimSpace(*w.Date) != "" {
		d := strings.TrimSpace(*w.Date)
		ex.Date = &d
	}
	if w.DoctorNotes != nil && strings.TrimSpace(*w.DoctorNotes) != "" {
		n := strings.TrimSpace(*w.DoctorNotes)
		ex.DoctorNotes = &n
	}
	if w.RawText != nil {
		ex.RawText = *w.RawText
	}
	return ex, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
