package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/efebarandurmaz/medrag/internal/llm"
)

const (
	defaultWhisperURL   = "https://api.groq.com/openai/v1"
	defaultWhisperModel = "whisper-large-v3"
)

// Whisper transcribes audio through an OpenAI-compatible transcription
// endpoint (Groq by default).
type Whisper struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewWhisper creates a transcriber. Empty values use Groq's endpoint and
// whisper-large-v3; timeout <= 0 uses 60s.
func NewWhisper(apiKey, baseURL, model string, timeout time.Duration) *Whisper {
	if baseURL == "" {
		baseURL = defaultWhisperURL
	}
	if model == "" {
		model = defaultWhisperModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Whisper{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (w *Whisper) Extract(ctx context.Context, data []byte) (string, error) {
	if w.apiKey == "" {
		return "", &llm.UpstreamError{Service: "whisper", Err: llm.ErrNotConfigured}
	}
	if err := requireInput(data, "file"); err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", w.model); err != nil {
		return "", err
	}
	part, err := mw.CreateFormFile("file", "audio.webm")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", llm.Upstream("whisper", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", llm.Upstream("whisper", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(raw)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return "", &llm.UpstreamError{Service: "whisper", StatusCode: resp.StatusCode, Message: msg}
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", &llm.UpstreamError{Service: "whisper", Message: fmt.Sprintf("malformed response: %v", err)}
	}
	return requireText(result.Text, "file", "no speech detected in audio")
}

var _ Extractor = (*Whisper)(nil)
