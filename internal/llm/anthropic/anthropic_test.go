package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/efebarandurmaz/medrag/internal/llm"
)

func TestNew_SetsDefaults(t *testing.T) {
	client := New("test-key", "test-model", "")
	if client.baseURL != defaultBaseURL {
		t.Errorf("expected default baseURL %q, got %q", defaultBaseURL, client.baseURL)
	}
	if client.http == nil || client.http.Timeout == 0 {
		t.Error("expected http client with a timeout")
	}
	if client.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got %q", client.Name())
	}
}

func TestComplete_HeadersAndBody(t *testing.T) {
	var capturedHeaders http.Header
	var capturedBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedHeaders = r.Header
		json.NewDecoder(r.Body).Decode(&capturedBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "response"}},
			"model":   "claude-test",
			"usage":   map[string]int{"input_tokens": 10, "output_tokens": 20},
		})
	}))
	defer server.Close()

	client := New("test-api-key", "claude-test", server.URL)
	resp, err := client.Complete(context.Background(), llm.NewPrompt("be careful", "hello"), llm.NewRequestOptions(0.2, 300))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if capturedHeaders.Get("x-api-key") != "test-api-key" {
		t.Errorf("expected x-api-key header, got %q", capturedHeaders.Get("x-api-key"))
	}
	if capturedHeaders.Get("anthropic-version") != "2023-06-01" {
		t.Errorf("unexpected anthropic-version %q", capturedHeaders.Get("anthropic-version"))
	}
	if capturedBody["system"] != "be careful" {
		t.Errorf("expected system prompt in body, got %v", capturedBody["system"])
	}
	if capturedBody["temperature"] != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", capturedBody["temperature"])
	}
	if capturedBody["max_tokens"] != float64(300) {
		t.Errorf("expected max_tokens 300, got %v", capturedBody["max_tokens"])
	}
	if resp.Content != "response" || resp.InputTokens != 10 || resp.OutputTokens != 20 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestComplete_NonOKIsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	client := New("key", "model", server.URL)
	_, err := client.Complete(context.Background(), llm.NewPrompt("", "hi"), nil)

	var ue *llm.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", ue.StatusCode)
	}
}

func TestComplete_SkipsThinkingAndFoldsSystemTurns(t *testing.T) {
	var captured messagesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "thinking", "text": "weighing differentials"},
				{"type": "text", "text": "Likely viral."},
			},
		})
	}))
	defer server.Close()

	prompt := &llm.Prompt{
		SystemPrompt: "You are a clinical assistant.",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Answer briefly."},
			{Role: llm.RoleUser, Content: "fever and cough"},
		},
	}
	resp, err := New("key", "model", server.URL+"/").Complete(context.Background(), prompt, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "Likely viral." {
		t.Errorf("content = %q", resp.Content)
	}
	if captured.System != "You are a clinical assistant.\nAnswer briefly." {
		t.Errorf("system = %q", captured.System)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != llm.RoleUser {
		t.Errorf("messages = %+v", captured.Messages)
	}
	if captured.MaxTokens != defaultMaxTokens {
		t.Errorf("max_tokens = %d", captured.MaxTokens)
	}
}

func TestEmbed_Unsupported(t *testing.T) {
	client := New("key", "model", "")
	if _, err := client.Embed(context.Background(), []string{"x"}); !errors.Is(err, ErrEmbeddingUnsupported) {
		t.Fatalf("expected ErrEmbeddingUnsupported, got %v", err)
	}
}
