package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Vector    VectorConfig    `mapstructure:"vector"`
	History   HistoryConfig   `mapstructure:"history"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Server    ServerConfig    `mapstructure:"server"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Audio     AudioConfig     `mapstructure:"audio"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`

	// OpenRouter attribution headers.
	Referer string `mapstructure:"referer"`
	Title   string `mapstructure:"title"`

	// Requests per minute; 0 disables rate limiting.
	RateLimit int `mapstructure:"rate_limit"`
}

// Headers returns the extra HTTP headers for the OpenAI-compatible client.
func (c LLMConfig) Headers() map[string]string {
	h := map[string]string{}
	if c.Referer != "" {
		h["HTTP-Referer"] = c.Referer
	}
	if c.Title != "" {
		h["X-Title"] = c.Title
	}
	return h
}

type EmbeddingConfig struct {
	// "llm" embeds through the configured provider's embedding endpoint,
	// "hash" uses the offline feature-hashing embedder.
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Dimension int    `mapstructure:"dimension"`
}

type VectorConfig struct {
	// "qdrant" or "memory".
	Backend             string `mapstructure:"backend"`
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	APIKey              string `mapstructure:"api_key"`
	UseTLS              bool   `mapstructure:"use_tls"`
	KnowledgeCollection string `mapstructure:"knowledge_collection"`
	HistoryCollection   string `mapstructure:"history_collection"`
}

type HistoryConfig struct {
	RecentDays       int `mapstructure:"recent_days"`
	TopK             int `mapstructure:"top_k"`
	SearchMargin     int `mapstructure:"search_margin"`
	ChronicScanLimit int `mapstructure:"chronic_scan_limit"`
}

type KnowledgeConfig struct {
	// Path to a YAML dataset; empty uses the embedded default.
	Path        string `mapstructure:"path"`
	AutoLoad    bool   `mapstructure:"auto_load"`
	DefaultTopK int    `mapstructure:"default_top_k"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

type GraphConfig struct {
	Backend  string `mapstructure:"backend"` // "neo4j" (when uri is set) or "memory"
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type AudioConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OCRConfig struct {
	Binary   string `mapstructure:"binary"`
	Language string `mapstructure:"language"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
}

type AuditConfig struct {
	Path string `mapstructure:"path"`
}

// Defaults returns the configuration used when no file or environment
// overrides a value.
func Defaults() map[string]any {
	return map[string]any{
		"llm.provider":    "openrouter",
		"llm.model":       "deepseek/deepseek-r1",
		"llm.api_key":     "",
		"llm.base_url":    "",
		"llm.temperature": 0.7,
		"llm.max_tokens":  1500,
		"llm.timeout":     60 * time.Second,
		"llm.max_retries": 2,
		"llm.referer":     "",
		"llm.title":       "medrag",
		"llm.rate_limit":  0,

		"embedding.provider":  "llm",
		"embedding.model":     "",
		"embedding.api_key":   "",
		"embedding.base_url":  "",
		"embedding.dimension": 768,

		"vector.backend":              "qdrant",
		"vector.host":                 "localhost",
		"vector.port":                 6334,
		"vector.api_key":              "",
		"vector.use_tls":              false,
		"vector.knowledge_collection": "medical_knowledge",
		"vector.history_collection":   "patient_history",

		"history.recent_days":        180,
		"history.top_k":              6,
		"history.search_margin":      4,
		"history.chronic_scan_limit": 50,

		"knowledge.path":          "",
		"knowledge.auto_load":     true,
		"knowledge.default_top_k": 3,

		"server.addr":             ":8000",
		"server.shutdown_timeout": 15 * time.Second,
		"server.max_upload_bytes": int64(20 << 20),

		"graph.backend":  "neo4j",
		"graph.uri":      "",
		"graph.username": "neo4j",
		"graph.password": "",

		"cache.redis_addr": "",
		"cache.password":   "",
		"cache.db":         0,
		"cache.ttl":        24 * time.Hour,

		"temporal.host":       "",
		"temporal.namespace":  "default",
		"temporal.task_queue": "medrag-ingest",

		"audio.api_key":  "",
		"audio.base_url": "https://api.groq.com/openai/v1",
		"audio.model":    "whisper-large-v3",
		"audio.timeout":  60 * time.Second,

		"ocr.binary":   "tesseract",
		"ocr.language": "eng",

		"log.level":  "info",
		"log.format": "json",

		"tracing.endpoint":     "",
		"tracing.insecure":     true,
		"tracing.sample_rate":  1.0,
		"tracing.service_name": "medrag",

		"audit.path": "",
	}
}

// Legacy environment names accepted alongside the MEDRAG_* ones.
var envAliases = map[string][]string{
	"llm.api_key":    {"OPENROUTER_API_KEY"},
	"vector.api_key": {"QDRANT_API_KEY"},
	"audio.api_key":  {"GROQ_API_KEY"},
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty; answers will use the local fallback", c.LLM.Provider))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}

	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}

	if c.History.TopK <= 0 {
		warnings = append(warnings, fmt.Sprintf("history top_k %d must be positive", c.History.TopK))
	}

	if c.History.RecentDays < 30 {
		warnings = append(warnings, fmt.Sprintf("history recent_days %d is below the 30 day window", c.History.RecentDays))
	}

	if c.Embedding.Dimension <= 0 {
		warnings = append(warnings, fmt.Sprintf("embedding dimension %d must be positive", c.Embedding.Dimension))
	}

	if c.Vector.Backend != "" && c.Vector.Backend != "qdrant" && c.Vector.Backend != "memory" {
		warnings = append(warnings, fmt.Sprintf("unknown vector backend '%s'", c.Vector.Backend))
	}

	if c.Graph.Backend != "" && c.Graph.Backend != "neo4j" && c.Graph.Backend != "memory" {
		warnings = append(warnings, fmt.Sprintf("unknown graph backend '%s'", c.Graph.Backend))
	}

	return warnings
}

// Load reads configuration from an optional file, a .env file in the working
// directory, and the environment. An empty path skips the config file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("MEDRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{"MEDRAG_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("binding env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
