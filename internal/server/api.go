// Package server exposes the engine over HTTP and provides health checks and
// graceful shutdown.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/efebarandurmaz/medrag/internal/extract"
	"github.com/efebarandurmaz/medrag/internal/graph"
	"github.com/efebarandurmaz/medrag/internal/history"
	"github.com/efebarandurmaz/medrag/internal/insight"
	"github.com/efebarandurmaz/medrag/internal/observability"
	"github.com/efebarandurmaz/medrag/internal/query"
)

// DefaultMaxUploadBytes limits uploaded images, PDFs and audio.
const DefaultMaxUploadBytes = 20 << 20

// Engine is the set of operations the API serves.
type Engine interface {
	GenerateQueryAnswer(ctx context.Context, question string, topK int) (*query.Answer, error)
	IngestPrescription(ctx context.Context, patientID, rawText string) (*history.Record, error)
	GenerateHistoryInsight(ctx context.Context, patientID, symptoms string, topK int) (*insight.Result, error)
	ReloadKnowledgeBase(ctx context.Context) (int, error)
	PatientHistory(ctx context.Context, patientID string, limit int) ([]history.Record, error)
	PatientConditions(ctx context.Context, patientID string) ([]graph.ConditionSummary, error)
}

// Dispatcher schedules prescription ingestion in the background.
type Dispatcher interface {
	DispatchIngest(ctx context.Context, patientID, rawText string) (string, error)
}

// Config holds the API's collaborators. Everything but Service is optional:
// routes whose collaborator is missing answer 503.
type Config struct {
	Service    Engine
	Health     *HealthServer
	Metrics    *observability.ServiceMetrics
	Dispatcher Dispatcher
	Audit      *observability.AuditLogger
	Logger     *zap.Logger

	OCR   extract.Extractor
	PDF   extract.Extractor
	Audio extract.Extractor

	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// API routes HTTP requests to the engine.
type API struct {
	svc        Engine
	health     *HealthServer
	metrics    *observability.ServiceMetrics
	dispatcher Dispatcher
	audit      *observability.AuditLogger
	logger     *zap.Logger

	ocr   extract.Extractor
	pdf   extract.Extractor
	audio extract.Extractor

	maxUpload int64
	timeout   time.Duration
}

// NewAPI creates an API.
func NewAPI(cfg Config) *API {
	a := &API{
		svc:        cfg.Service,
		health:     cfg.Health,
		metrics:    cfg.Metrics,
		dispatcher: cfg.Dispatcher,
		audit:      cfg.Audit,
		logger:     cfg.Logger,
		ocr:        cfg.OCR,
		pdf:        cfg.PDF,
		audio:      cfg.Audio,
		maxUpload:  cfg.MaxUploadBytes,
		timeout:    cfg.RequestTimeout,
	}
	if a.health == nil {
		a.health = NewHealthServer(nil)
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.maxUpload <= 0 {
		a.maxUpload = DefaultMaxUploadBytes
	}
	if a.timeout <= 0 {
		a.timeout = 5 * time.Minute
	}
	return a
}

// Handler returns the router.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.logger))
	r.Use(middleware.Recoverer)

	a.health.Mount(r)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(a.timeout))

		r.Post("/query", a.handleQuery)
		r.Post("/reload-data", a.handleReload)
		r.Post("/transcribe", a.handleTranscribe)

		r.Route("/patients/{id}", func(r chi.Router) {
			r.Get("/prescriptions", a.handleListPrescriptions)
			r.Post("/prescriptions", a.handleIngest)
			r.Post("/prescriptions/image", a.handleIngestUpload(a.ocr, "image"))
			r.Post("/prescriptions/pdf", a.handleIngestUpload(a.pdf, "PDF"))
			r.Post("/insight", a.handleInsight)
			r.Get("/conditions", a.handleConditions)
		})
	})
	return r
}

// Server returns an http.Server for addr serving the API.
func (a *API) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if ww.Status() >= http.StatusInternalServerError {
				logger.Warn("request failed", fields...)
				return
			}
			logger.Debug("request", fields...)
		})
	}
}
