package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func defaults(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaults(t)
	if cfg.History.RecentDays != 180 || cfg.History.TopK != 6 {
		t.Errorf("history = %+v", cfg.History)
	}
	if cfg.History.SearchMargin != 4 || cfg.History.ChronicScanLimit != 50 {
		t.Errorf("history = %+v", cfg.History)
	}
	if cfg.Vector.KnowledgeCollection != "medical_knowledge" || cfg.Vector.HistoryCollection != "patient_history" {
		t.Errorf("collections = %+v", cfg.Vector)
	}
	if cfg.Embedding.Dimension != 768 {
		t.Errorf("dimension = %d", cfg.Embedding.Dimension)
	}
	if cfg.LLM.Timeout != 60*time.Second {
		t.Errorf("timeout = %v", cfg.LLM.Timeout)
	}
	if cfg.LLM.Provider != "openrouter" || cfg.LLM.Model != "deepseek/deepseek-r1" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Audio.Model != "whisper-large-v3" {
		t.Errorf("audio model = %q", cfg.Audio.Model)
	}
	if cfg.Knowledge.DefaultTopK != 3 || cfg.LLM.Temperature != 0.7 || cfg.LLM.MaxTokens != 1500 {
		t.Errorf("knowledge = %+v, llm = %+v", cfg.Knowledge, cfg.LLM)
	}
	if cfg.Graph.Backend != "neo4j" {
		t.Errorf("graph backend = %q", cfg.Graph.Backend)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MEDRAG_HISTORY_TOP_K", "3")
	t.Setenv("MEDRAG_VECTOR_BACKEND", "memory")
	t.Setenv("OPENROUTER_API_KEY", "sk-legacy")
	t.Setenv("GROQ_API_KEY", "gsk")

	cfg := defaults(t)
	if cfg.History.TopK != 3 {
		t.Errorf("top_k = %d", cfg.History.TopK)
	}
	if cfg.Vector.Backend != "memory" {
		t.Errorf("backend = %q", cfg.Vector.Backend)
	}
	if cfg.LLM.APIKey != "sk-legacy" {
		t.Errorf("api_key = %q", cfg.LLM.APIKey)
	}
	if cfg.Audio.APIKey != "gsk" {
		t.Errorf("audio api_key = %q", cfg.Audio.APIKey)
	}
}

func TestLoad_PrefixedEnvWins(t *testing.T) {
	t.Setenv("MEDRAG_LLM_API_KEY", "sk-new")
	t.Setenv("OPENROUTER_API_KEY", "sk-legacy")
	if got := defaults(t).LLM.APIKey; got != "sk-new" {
		t.Errorf("api_key = %q, want sk-new", got)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medrag.yaml")
	body := "history:\n  recent_days: 90\nvector:\n  backend: memory\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.History.RecentDays != 90 {
		t.Errorf("recent_days = %d", cfg.History.RecentDays)
	}
	if cfg.History.TopK != 6 {
		t.Errorf("unset key should keep default, got %d", cfg.History.TopK)
	}
}

func TestLoad_ShippedExample(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "medrag.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8000" || cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Temporal.TaskQueue != "medrag-ingest" || cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("temporal = %+v, cache = %+v", cfg.Temporal, cfg.Cache)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := defaults(t)
	cfg.LLM.APIKey = ""
	if !hasWarning(cfg.Validate(), "api_key") {
		t.Error("expected warning about missing api_key")
	}
}

func TestValidate_NoneProvider(t *testing.T) {
	cfg := defaults(t)
	cfg.LLM.Provider = "none"
	cfg.LLM.APIKey = ""
	if hasWarning(cfg.Validate(), "api_key") {
		t.Error("'none' provider should not warn about missing api_key")
	}
}

func TestValidate_InvalidTemperature(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		want bool
	}{
		{"zero", 0, false},
		{"normal", 0.7, false},
		{"max", 2.0, false},
		{"negative", -1, true},
		{"too_high", 3.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults(t)
			cfg.LLM.Temperature = tt.temp
			if got := hasWarning(cfg.Validate(), "temperature"); got != tt.want {
				t.Errorf("temperature=%.1f: hasWarn=%v, want=%v", tt.temp, got, tt.want)
			}
		})
	}
}

func TestValidate_HistoryBounds(t *testing.T) {
	cfg := defaults(t)
	cfg.History.TopK = 0
	cfg.History.RecentDays = 10
	warnings := cfg.Validate()
	if !hasWarning(warnings, "top_k") {
		t.Error("expected top_k warning")
	}
	if !hasWarning(warnings, "recent_days") {
		t.Error("expected recent_days warning")
	}
}

func TestValidate_Backend(t *testing.T) {
	cfg := defaults(t)
	cfg.Vector.Backend = "pinecone"
	cfg.Graph.Backend = "arangodb"
	warnings := cfg.Validate()
	if !hasWarning(warnings, "vector backend") {
		t.Error("expected vector backend warning")
	}
	if !hasWarning(warnings, "graph backend") {
		t.Error("expected graph backend warning")
	}
}

func TestHeaders(t *testing.T) {
	h := LLMConfig{Referer: "https://example.org", Title: "medrag"}.Headers()
	if h["HTTP-Referer"] != "https://example.org" || h["X-Title"] != "medrag" {
		t.Errorf("headers = %v", h)
	}
	if len((LLMConfig{}).Headers()) != 0 {
		t.Error("empty config should give no headers")
	}
}
