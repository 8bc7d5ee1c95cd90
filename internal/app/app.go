// Package app builds the engine and its collaborators from configuration.
// cmd/medrag and cmd/worker share it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	temporalclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/efebarandurmaz/medrag/internal/config"
	"github.com/efebarandurmaz/medrag/internal/embedding"
	"github.com/efebarandurmaz/medrag/internal/engine"
	"github.com/efebarandurmaz/medrag/internal/extract"
	"github.com/efebarandurmaz/medrag/internal/graph"
	graphmem "github.com/efebarandurmaz/medrag/internal/graph/memory"
	"github.com/efebarandurmaz/medrag/internal/graph/neo4j"
	"github.com/efebarandurmaz/medrag/internal/history"
	"github.com/efebarandurmaz/medrag/internal/insight"
	"github.com/efebarandurmaz/medrag/internal/knowledge"
	"github.com/efebarandurmaz/medrag/internal/llm"
	"github.com/efebarandurmaz/medrag/internal/llmutil"
	"github.com/efebarandurmaz/medrag/internal/observability"
	"github.com/efebarandurmaz/medrag/internal/query"
	"github.com/efebarandurmaz/medrag/internal/server"
	"github.com/efebarandurmaz/medrag/internal/vector"
	"github.com/efebarandurmaz/medrag/internal/vector/memory"
	"github.com/efebarandurmaz/medrag/internal/vector/qdrant"
)

// App holds a wired Service and every resource it owns.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Service *engine.Service

	// Provider is nil when no model credential is configured.
	Provider llm.Provider
	Vector   vector.Repository
	Embedder embedding.Provider
	Graph    *neo4j.Repository
	Redis    *redis.Client
	Tracing  *observability.TracerProvider
	Audit    *observability.AuditLogger
	Metrics  *observability.ServiceMetrics

	OCR   extract.Extractor
	PDF   extract.Extractor
	Audio extract.Extractor
}

// New builds the App. Optional backends (graph, cache, tracing, audit) are
// skipped when unconfigured.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewServiceMetrics(),
	}
	if err := a.build(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	a.Tracing = tp

	a.Audit, err = observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Audit.Path != "",
		OutputPath: cfg.Audit.Path,
	})
	if err != nil {
		return err
	}

	factory := llm.NewFactory()
	llmutil.RegisterDefaultProviders(factory)

	provider, err := factory.Create(llm.ProviderConfig{
		Provider:   cfg.LLM.Provider,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		BaseURL:    cfg.LLM.BaseURL,
		Headers:    cfg.LLM.Headers(),
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}
	if provider == nil {
		a.Logger.Warn("no language model credential configured; questions will fail and insights use the local fallback",
			zap.String("provider", cfg.LLM.Provider))
	}
	if cfg.LLM.RateLimit > 0 {
		provider = llm.WithRateLimit(provider, &llm.RateLimitConfig{
			RequestsPerMinute: cfg.LLM.RateLimit,
			BurstSize:         max(1, cfg.LLM.RateLimit/10),
		})
	}
	a.Provider = observability.Instrument(provider, a.Metrics)

	if a.Embedder, err = a.buildEmbedder(factory); err != nil {
		return err
	}
	if a.Vector, err = buildVector(cfg.Vector); err != nil {
		return err
	}
	dim := a.Embedder.Dimensions()
	for _, name := range []string{cfg.Vector.KnowledgeCollection, cfg.Vector.HistoryCollection} {
		if err := a.Vector.EnsureCollection(ctx, name, dim); err != nil {
			return fmt.Errorf("ensure collection %s: %w", name, err)
		}
	}

	var g graph.Repository
	switch cfg.Graph.Backend {
	case "memory":
		g = graphmem.New()
	case "neo4j", "":
		if cfg.Graph.URI != "" {
			a.Graph, err = neo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
			if err != nil {
				return err
			}
			g = a.Graph
		}
	default:
		return fmt.Errorf("unknown graph backend %q", cfg.Graph.Backend)
	}
	temperature := cfg.LLM.Temperature

	source := knowledge.Source(knowledge.Default)
	if cfg.Knowledge.Path != "" {
		path := cfg.Knowledge.Path
		source = func() ([]knowledge.Document, error) { return knowledge.LoadFile(path) }
	}

	store := history.NewStore(a.Vector, a.Embedder, cfg.Vector.HistoryCollection)
	a.Service = engine.New(engine.Components{
		Query: query.NewEngine(a.Provider, a.Embedder, a.Vector, query.Config{
			Collection:  cfg.Vector.KnowledgeCollection,
			Model:       cfg.LLM.Model,
			TopK:        cfg.Knowledge.DefaultTopK,
			Temperature: &temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		}, a.Logger),
		Structurer: history.NewStructurer(a.Provider, a.Logger),
		Store:      store,
		Retriever: history.NewRetriever(store, history.NewScorer(cfg.History.RecentDays, time.Now), history.RetrieverConfig{
			TopK:             cfg.History.TopK,
			SearchMargin:     cfg.History.SearchMargin,
			ChronicScanLimit: cfg.History.ChronicScanLimit,
		}),
		Insight:   insight.NewGenerator(a.Provider, insight.WithLogger(a.Logger)),
		Knowledge: knowledge.NewLoader(a.Vector, a.Embedder, cfg.Vector.KnowledgeCollection, source, a.Logger),
		Graph:     g,
		Audit:     a.Audit,
		Metrics:   a.Metrics,
		Logger:    a.Logger,
		Timeout:   cfg.LLM.Timeout,
	})

	a.PDF = extract.PDF{}
	if cfg.OCR.Binary != "" {
		a.OCR = extract.NewTesseract(cfg.OCR.Binary, cfg.OCR.Language)
	}
	if cfg.Audio.APIKey != "" {
		a.Audio = extract.NewWhisper(cfg.Audio.APIKey, cfg.Audio.BaseURL, cfg.Audio.Model, cfg.Audio.Timeout)
	}
	return nil
}

// buildEmbedder embeds through the provider's embedding endpoint, or the
// offline hash embedder when asked to or when no credential is set. A redis
// address adds the cache.
func (a *App) buildEmbedder(factory *llm.ProviderFactory) (embedding.Provider, error) {
	cfg := a.Config
	dim := cfg.Embedding.Dimension

	var emb embedding.Provider
	switch cfg.Embedding.Provider {
	case "hash":
		emb = embedding.NewHashEmbedder(dim)
	case "llm", "":
		pc := llm.ProviderConfig{
			Provider:   cfg.LLM.Provider,
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			BaseURL:    cfg.LLM.BaseURL,
			EmbedModel: cfg.Embedding.Model,
			Headers:    cfg.LLM.Headers(),
			Timeout:    cfg.LLM.Timeout,
			MaxRetries: cfg.LLM.MaxRetries,
		}
		if cfg.Embedding.BaseURL != "" {
			pc.Provider = "custom"
			pc.BaseURL = cfg.Embedding.BaseURL
		}
		if cfg.Embedding.APIKey != "" {
			pc.APIKey = cfg.Embedding.APIKey
		}
		p, err := factory.Create(pc)
		if err != nil {
			return nil, fmt.Errorf("creating embedding provider: %w", err)
		}
		if p == nil {
			a.Logger.Warn("no embedding credential configured; using the offline hash embedder")
			emb = embedding.NewHashEmbedder(dim)
			break
		}
		emb = embedding.NewLLMEmbedder(observability.Instrument(p, a.Metrics), dim)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	if cfg.Cache.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		ns := fmt.Sprintf("%s:%s:%d", cfg.Embedding.Provider, cfg.Embedding.Model, dim)
		emb = embedding.NewRedisCache(emb, a.Redis, ns, cfg.Cache.TTL, a.Logger)
	}
	return emb, nil
}

func buildVector(cfg config.VectorConfig) (vector.Repository, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "qdrant", "":
		return qdrant.New(qdrant.Config{Host: cfg.Host, Port: cfg.Port, APIKey: cfg.APIKey, UseTLS: cfg.UseTLS})
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}

// ProviderName returns the configured model provider, or "" without one.
func (a *App) ProviderName() string {
	if a.Provider == nil {
		return ""
	}
	return a.Provider.Name()
}

// RegisterHealthChecks adds a check per configured optional backend.
func (a *App) RegisterHealthChecks(h *server.HealthServer) {
	h.RegisterCheck("llm", server.LLMHealthChecker(a.ProviderName()))
	if a.Graph != nil {
		h.RegisterCheck("graph", server.GraphHealthChecker(a.Graph.Ping))
	}
	if a.Redis != nil {
		client := a.Redis
		h.RegisterCheck("embedding_cache", server.CacheHealthChecker(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}
}

// ShutdownHooks returns the hooks releasing the App's resources.
func (a *App) ShutdownHooks() []server.ShutdownHook {
	var hooks []server.ShutdownHook
	if a.Tracing != nil {
		hooks = append(hooks, server.TracingShutdownHook(a.Tracing.Shutdown))
	}
	if a.Graph != nil {
		hooks = append(hooks, server.GraphShutdownHook(a.Graph.Close))
	}
	if a.Redis != nil {
		hooks = append(hooks, server.StoreShutdownHook("embedding-cache", a.Redis.Close))
	}
	if a.Vector != nil {
		hooks = append(hooks, server.StoreShutdownHook("vector-store", a.Vector.Close))
	}
	if a.Audit != nil {
		hooks = append(hooks, server.AuditLoggerShutdownHook(a.Audit.Close))
	}
	return hooks
}

// Close runs every shutdown hook now. Commands that do not serve use it.
func (a *App) Close(ctx context.Context) {
	for _, hook := range a.ShutdownHooks() {
		if err := hook.Fn(ctx); err != nil {
			a.Logger.Warn("closing resource", zap.String("resource", hook.Name), zap.Error(err))
		}
	}
}

// DialTemporal connects to the configured Temporal server. It returns nil
// without a host.
func DialTemporal(cfg config.TemporalConfig, logger *zap.Logger) (temporalclient.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}
	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Host,
		Namespace: cfg.Namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("temporal client: %w", err)
	}
	return c, nil
}
