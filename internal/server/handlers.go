package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/efebarandurmaz/medrag/internal/extract"
	"github.com/efebarandurmaz/medrag/internal/graph"
	"github.com/efebarandurmaz/medrag/internal/history"
	"github.com/efebarandurmaz/medrag/internal/llm"
)

const (
	// uploadField is the multipart field carrying uploaded files.
	uploadField = "file"

	defaultListLimit = 100
)

type queryRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k,omitempty"`
}

type ingestRequest struct {
	RawText string `json:"raw_text"`
}

type insightRequest struct {
	Symptoms string `json:"symptoms"`
	TopK     int    `json:"top_k,omitempty"`
}

type reloadResponse struct {
	Status         string `json:"status"`
	DocumentsAdded int    `json:"documents_added"`
}

type scheduledResponse struct {
	Status     string `json:"status"`
	PatientID  string `json:"patient_id"`
	WorkflowID string `json:"workflow_id"`
}

type historyResponse struct {
	PatientID string           `json:"patient_id"`
	Records   []history.Record `json:"records"`
}

type conditionsResponse struct {
	PatientID  string                   `json:"patient_id"`
	Conditions []graph.ConditionSummary `json:"conditions"`
}

type transcribeResponse struct {
	Text string `json:"text"`
}

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !a.decode(w, r, &req) {
		return
	}
	topK := 0
	if req.TopK != nil {
		topK = *req.TopK
	}
	ans, err := a.svc.GenerateQueryAnswer(r.Context(), req.Query, topK)
	if err != nil {
		a.respondFailure(w, "query", err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	n, err := a.svc.ReloadKnowledgeBase(r.Context())
	if err != nil {
		a.respondFailure(w, "reload knowledge base", err)
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{Status: "success", DocumentsAdded: n})
}

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")
	var req ingestRequest
	if !a.decode(w, r, &req) {
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		a.schedule(r.Context(), w, patientID, req.RawText)
		return
	}
	a.ingest(r.Context(), w, patientID, req.RawText)
}

func (a *API) schedule(ctx context.Context, w http.ResponseWriter, patientID, rawText string) {
	if a.dispatcher == nil {
		respondError(w, http.StatusServiceUnavailable, "async ingestion is not configured")
		return
	}
	switch {
	case strings.TrimSpace(patientID) == "":
		a.respondFailure(w, "schedule ingestion", history.NewInputError("patient_id", "must not be empty"))
		return
	case strings.TrimSpace(rawText) == "":
		a.respondFailure(w, "schedule ingestion", history.NewInputError("raw_text", "must not be empty"))
		return
	}

	id, err := a.dispatcher.DispatchIngest(ctx, patientID, rawText)
	if err != nil {
		a.respondFailure(w, "schedule ingestion", err)
		return
	}
	a.audit.LogIngestScheduled(patientID, id)
	writeJSON(w, http.StatusAccepted, scheduledResponse{Status: "scheduled", PatientID: patientID, WorkflowID: id})
}

func (a *API) ingest(ctx context.Context, w http.ResponseWriter, patientID, rawText string) {
	rec, err := a.svc.IngestPrescription(ctx, patientID, rawText)
	if err != nil {
		a.respondFailure(w, "ingest prescription", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleIngestUpload extracts prescription text from an uploaded file and
// ingests it.
func (a *API) handleIngestUpload(ex extract.Extractor, kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ex == nil {
			respondError(w, http.StatusServiceUnavailable, kind+" intake is not configured")
			return
		}
		data, ok := a.readUpload(w, r)
		if !ok {
			return
		}
		text, err := ex.Extract(r.Context(), data)
		if err != nil {
			a.respondFailure(w, "extract "+kind, err)
			return
		}
		a.ingest(r.Context(), w, chi.URLParam(r, "id"), text)
	}
}

func (a *API) handleListPrescriptions(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := a.svc.PatientHistory(r.Context(), patientID, limit)
	if err != nil {
		a.respondFailure(w, "list history", err)
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, historyResponse{PatientID: patientID, Records: recs})
}

func (a *API) handleInsight(w http.ResponseWriter, r *http.Request) {
	var req insightRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.svc.GenerateHistoryInsight(r.Context(), chi.URLParam(r, "id"), req.Symptoms, req.TopK)
	if err != nil {
		a.respondFailure(w, "history insight", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleConditions(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")
	conds, err := a.svc.PatientConditions(r.Context(), patientID)
	if err != nil {
		a.respondFailure(w, "patient conditions", err)
		return
	}
	if conds == nil {
		conds = []graph.ConditionSummary{}
	}
	writeJSON(w, http.StatusOK, conditionsResponse{PatientID: patientID, Conditions: conds})
}

func (a *API) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if a.audio == nil {
		respondError(w, http.StatusServiceUnavailable, "transcription is not configured")
		return
	}
	data, ok := a.readUpload(w, r)
	if !ok {
		return
	}
	text, err := a.audio.Extract(r.Context(), data)
	if err != nil {
		a.respondFailure(w, "transcribe", err)
		return
	}
	writeJSON(w, http.StatusOK, transcribeResponse{Text: text})
}

// decode reads a JSON body into v, answering 400 or 413 itself on failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// readUpload returns the multipart "file" part, or the raw body for other
// content types.
func (a *API) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile(uploadField)
		if err != nil {
			a.uploadError(w, err)
			return nil, false
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		a.uploadError(w, err)
		return nil, false
	}
	return data, true
}

func (a *API) uploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	respondError(w, http.StatusBadRequest, "missing upload: expected multipart field \""+uploadField+"\"")
}

// respondFailure maps err onto a status code and a JSON error body.
func (a *API) respondFailure(w http.ResponseWriter, op string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error(op+" failed", zap.Int("status", status), zap.Error(err))
	} else {
		a.logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	respondError(w, status, err.Error())
}

// StatusFor returns the HTTP status for an engine error.
func StatusFor(err error) int {
	var (
		inputErr  *history.InputError
		structErr *history.StructuringError
		upErr     *llm.UpstreamError
	)
	switch {
	case errors.As(err, &inputErr):
		return http.StatusBadRequest
	case errors.As(err, &structErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, graph.ErrNotConfigured), errors.Is(err, llm.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &upErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
