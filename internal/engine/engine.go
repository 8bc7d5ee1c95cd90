// Package engine composes retrieval, structuring and generation into the
// three operations served to callers: knowledge questions, prescription
// ingestion and history insight.
package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/efebarandurmaz/medrag/internal/graph"
	"github.com/efebarandurmaz/medrag/internal/history"
	"github.com/efebarandurmaz/medrag/internal/insight"
	"github.com/efebarandurmaz/medrag/internal/knowledge"
	"github.com/efebarandurmaz/medrag/internal/observability"
	"github.com/efebarandurmaz/medrag/internal/query"
)

// DefaultTimeout bounds each external step of an operation.
const DefaultTimeout = 60 * time.Second

// Components are the collaborators a Service is built from. Graph, Audit
// and Metrics are optional.
type Components struct {
	Query      *query.Engine
	Structurer *history.Structurer
	Builder    *history.Builder
	Store      *history.Store
	Retriever  *history.Retriever
	Insight    *insight.Generator
	Knowledge  *knowledge.Loader

	Graph   graph.Repository
	Audit   *observability.AuditLogger
	Metrics *observability.ServiceMetrics
	Logger  *zap.Logger

	// Timeout bounds each embedding, vector store and model step
	// (DefaultTimeout when zero).
	Timeout time.Duration
}

// Service is safe for concurrent use; it holds no per-request state.
type Service struct {
	query      *query.Engine
	structurer *history.Structurer
	builder    *history.Builder
	store      *history.Store
	retriever  *history.Retriever
	insight    *insight.Generator
	knowledge  *knowledge.Loader
	graph      graph.Repository
	audit      *observability.AuditLogger
	metrics    *observability.ServiceMetrics
	logger     *zap.Logger
	timeout    time.Duration
}

// New creates a Service.
func New(c Components) *Service {
	s := &Service{
		query:      c.Query,
		structurer: c.Structurer,
		builder:    c.Builder,
		store:      c.Store,
		retriever:  c.Retriever,
		insight:    c.Insight,
		knowledge:  c.Knowledge,
		graph:      c.Graph,
		audit:      c.Audit,
		metrics:    c.Metrics,
		logger:     c.Logger,
		timeout:    c.Timeout,
	}
	if s.builder == nil {
		s.builder = history.NewBuilder()
	}
	if s.metrics == nil {
		s.metrics = observability.NewServiceMetrics()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	return s
}

// Metrics returns the metric set the service records into.
func (s *Service) Metrics() *observability.ServiceMetrics { return s.metrics }

// HasGraph reports whether a graph backend is configured.
func (s *Service) HasGraph() bool { return s.graph != nil }

func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// GenerateQueryAnswer answers a question from the knowledge base. An empty
// knowledge base yields the fixed refusal without a model call.
func (s *Service) GenerateQueryAnswer(ctx context.Context, question string, topK int) (*query.Answer, error) {
	ctx, span := observability.StartQuerySpan(ctx, topK)
	defer span.End()
	start := time.Now()

	bctx, cancel := s.bounded(ctx)
	defer cancel()
	ans, err := s.query.Answer(bctx, question, topK)

	observability.RecordError(span, err)
	s.metrics.RecordQuery(ans != nil && ans.Response == query.RefusalResponse, err)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		s.audit.LogQuery("", 0, time.Since(start), err)
		return nil, err
	}
	s.audit.LogQuery(ans.Model, len(ans.Sources), time.Since(start), nil)
	return ans, nil
}

// IngestPrescription structures rawText, builds the patient's history
// record and stores it.
func (s *Service) IngestPrescription(ctx context.Context, patientID, rawText string) (*history.Record, error) {
	ctx, span := observability.StartIngestSpan(ctx, patientID)
	defer span.End()
	start := time.Now()

	rec, err := s.ingest(ctx, patientID, rawText)
	observability.RecordError(span, err)
	s.metrics.RecordIngest(err)
	if err != nil {
		s.logger.Warn("prescription ingestion failed", zap.String("patient_id", patientID), zap.Error(err))
		s.audit.LogIngestError(patientID, err)
		return nil, err
	}
	s.audit.LogIngest(rec.PatientID, rec.ID, rec.IsChronic, len(rec.Diagnosis), len(rec.Medicines), time.Since(start))
	return rec, nil
}

func (s *Service) ingest(ctx context.Context, patientID, rawText string) (*history.Record, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, history.NewInputError("patient_id", "must not be empty")
	}
	ex, err := s.Structure(ctx, rawText)
	if err != nil {
		return nil, err
	}
	rec, err := s.BuildRecord(patientID, ex, rawText)
	if err != nil {
		return nil, err
	}
	if err := s.StoreRecord(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Structure runs the prescription structurer under the step timeout.
func (s *Service) Structure(ctx context.Context, rawText string) (*history.Extraction, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.structurer.Structure(ctx, rawText)
}

// BuildRecord resolves the record's date and id. The result is frozen:
// storing it again writes the same point.
func (s *Service) BuildRecord(patientID string, ex *history.Extraction, rawText string) (history.Record, error) {
	return s.builder.Build(patientID, ex, rawText)
}

// StoreRecord saves rec in the history collection and projects it into the
// graph when one is configured. Graph failures are logged, not returned.
func (s *Service) StoreRecord(ctx context.Context, rec history.Record) error {
	bctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.store.Save(bctx, rec); err != nil {
		return err
	}
	s.logger.Info("history record stored",
		zap.String("patient_id", rec.PatientID),
		zap.String("record_id", rec.ID),
		zap.Bool("is_chronic", rec.IsChronic),
	)

	if s.graph != nil {
		gctx, gcancel := s.bounded(ctx)
		defer gcancel()
		if err := s.graph.ProjectRecord(gctx, rec); err != nil {
			s.logger.Warn("graph projection failed", zap.String("record_id", rec.ID), zap.Error(err))
		}
	}
	return nil
}

// GenerateHistoryInsight correlates symptoms with the patient's ranked
// history. A patient without records gets the fixed no-history result and
// no model call. Model failures never surface: the result falls back to a
// local summary. Retrieval failures and invalid input are returned.
func (s *Service) GenerateHistoryInsight(ctx context.Context, patientID, symptoms string, topK int) (*insight.Result, error) {
	ctx, span := observability.StartInsightSpan(ctx, patientID, topK)
	defer span.End()
	start := time.Now()

	if strings.TrimSpace(symptoms) == "" {
		err := history.NewInputError("symptoms", "must not be empty")
		observability.RecordError(span, err)
		return nil, err
	}

	rctx, cancel := s.bounded(ctx)
	items, err := s.retriever.Evidence(rctx, patientID, symptoms, topK)
	cancel()
	if err != nil {
		observability.RecordError(span, err)
		s.logger.Error("history retrieval failed", zap.String("patient_id", patientID), zap.Error(err))
		return nil, err
	}

	var res *insight.Result
	if len(items) == 0 {
		res = insight.NoHistory()
	} else {
		gctx, gcancel := s.bounded(ctx)
		res = s.insight.Generate(gctx, symptoms, items)
		gcancel()
	}

	observability.RecordInsightResult(span, len(res.HistoryUsed), res.Fallback())
	s.metrics.RecordInsight(len(res.HistoryUsed), res.Fallback())
	s.audit.LogInsight(patientID, res.Model, len(res.HistoryUsed), res.Reason, time.Since(start))
	return res, nil
}

// ReloadKnowledgeBase replaces the knowledge collection with the configured
// dataset and returns the number of documents loaded.
func (s *Service) ReloadKnowledgeBase(ctx context.Context) (int, error) {
	ctx, span := observability.StartKnowledgeSpan(ctx, s.knowledge.Collection())
	defer span.End()
	start := time.Now()

	n, err := s.knowledge.Reload(ctx)
	observability.RecordError(span, err)
	s.audit.LogKnowledgeReload(s.knowledge.Collection(), n, time.Since(start), err)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordKnowledgeReload(n)
	return n, nil
}

// EnsureKnowledgeBase loads the dataset when the collection is empty. It
// reports the document count and whether a load happened.
func (s *Service) EnsureKnowledgeBase(ctx context.Context) (int, bool, error) {
	n, loaded, err := s.knowledge.EnsureLoaded(ctx)
	if err != nil {
		return 0, false, err
	}
	if loaded {
		s.audit.LogKnowledgeReload(s.knowledge.Collection(), n, 0, nil)
		s.metrics.RecordKnowledgeReload(n)
	} else {
		s.metrics.KnowledgeDocs.Set(float64(n))
	}
	return n, loaded, nil
}

// DocumentCount returns the number of knowledge documents stored.
func (s *Service) DocumentCount(ctx context.Context) (int, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.knowledge.Count(ctx)
}

// PatientHistory lists up to limit stored records for the patient.
func (s *Service) PatientHistory(ctx context.Context, patientID string, limit int) ([]history.Record, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, history.NewInputError("patient_id", "must not be empty")
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.store.All(ctx, patientID, limit)
}

// PatientConditions summarizes the patient's conditions from the graph.
// Returns graph.ErrNotConfigured without a graph backend.
func (s *Service) PatientConditions(ctx context.Context, patientID string) ([]graph.ConditionSummary, error) {
	if s.graph == nil {
		return nil, graph.ErrNotConfigured
	}
	if strings.TrimSpace(patientID) == "" {
		return nil, history.NewInputError("patient_id", "must not be empty")
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.graph.PatientConditions(ctx, patientID)
}
