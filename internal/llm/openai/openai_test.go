package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/efebarandurmaz/medrag/internal/llm"
)

func TestNew_Defaults(t *testing.T) {
	c := New("key", "deepseek/deepseek-r1", "", "")
	if c.baseURL != defaultBaseURL {
		t.Errorf("expected default base url, got %q", c.baseURL)
	}
	if c.embedModel != "text-embedding-3-small" {
		t.Errorf("unexpected embed model %q", c.embedModel)
	}
	if c.Name() != "openai" {
		t.Errorf("expected name openai, got %q", c.Name())
	}
	if New("k", "m", "", "", WithName("openrouter")).Name() != "openrouter" {
		t.Error("WithName not applied")
	}
}

func TestComplete_SendsHeadersAndStripsThinking(t *testing.T) {
	var headers http.Header
	var body map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		headers = r.Header
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{
			"model": "deepseek/deepseek-r1",
			"choices": []map[string]any{{
				"message":       map[string]string{"content": "<think>pondering</think>Drink fluids."},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 7, "completion_tokens": 3},
		})
	}))
	defer server.Close()

	c := New("secret", "deepseek/deepseek-r1", server.URL, "",
		WithHeaders(map[string]string{"X-Title": "Medical RAG Assistant"}))
	resp, err := c.Complete(context.Background(), llm.NewPrompt("sys", "user"), llm.NewRequestOptions(0.7, 1500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if headers.Get("Authorization") != "Bearer secret" {
		t.Errorf("unexpected Authorization %q", headers.Get("Authorization"))
	}
	if headers.Get("X-Title") != "Medical RAG Assistant" {
		t.Errorf("expected X-Title header, got %q", headers.Get("X-Title"))
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(msgs))
	}
	if resp.Content != "Drink fluids." {
		t.Errorf("expected thinking stripped, got %q", resp.Content)
	}
	if resp.Usage()["total_tokens"] != 10 {
		t.Errorf("unexpected usage %v", resp.Usage())
	}
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   int
	}{
		{"server error", http.StatusBadGateway, `bad gateway`, http.StatusBadGateway},
		{"malformed", http.StatusOK, `not json`, 0},
		{"no choices", http.StatusOK, `{"choices":[]}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := New("k", "m", server.URL, "")
			_, err := c.Complete(context.Background(), llm.NewPrompt("", "q"), nil)
			var ue *llm.UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("expected UpstreamError, got %v", err)
			}
			if ue.StatusCode != tt.code {
				t.Errorf("expected status %d, got %d", tt.code, ue.StatusCode)
			}
		})
	}
}

func TestEmbed_OrdersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0, 1}},
				{"index": 0, "embedding": []float32{1, 0}},
			},
		})
	}))
	defer server.Close()

	c := New("k", "m", server.URL, "emb")
	out, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0][0] != 1 || out[1][1] != 1 {
		t.Errorf("embeddings not ordered by index: %v", out)
	}
}
