package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventIngest          AuditEventType = "history.ingest"
	AuditEventIngestError     AuditEventType = "history.ingest_error"
	AuditEventIngestScheduled AuditEventType = "history.ingest_scheduled"
	AuditEventInsight         AuditEventType = "insight.generate"
	AuditEventInsightFallback AuditEventType = "insight.fallback"
	AuditEventQuery           AuditEventType = "query.answer"
	AuditEventKnowledgeReload AuditEventType = "knowledge.reload"
)

// AuditEvent represents a single audit log entry. Clinical text is never
// recorded, only identifiers and counts.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	SessionID   string         `json:"session_id"`
	PatientID   string         `json:"patient_id,omitempty"`
	RecordID    string         `json:"record_id,omitempty"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	Model       string         `json:"model,omitempty"`
	Success     bool           `json:"success"`
	DurationMS  int64          `json:"duration_ms,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// AuditLogger writes audit events as JSON lines. The zero value and a nil
// *AuditLogger discard everything.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
	now       func() time.Time
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
}

// DefaultAuditConfig returns default audit configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:    true,
		OutputPath: "stdout",
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}
	if !config.Enabled {
		return &AuditLogger{}, nil
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	return NewAuditWriter(writer, config.SessionID), nil
}

// NewAuditWriter returns an enabled logger writing to w.
func NewAuditWriter(w io.Writer, sessionID string) *AuditLogger {
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return &AuditLogger{
		writer:    w,
		sessionID: sessionID,
		enabled:   true,
		now:       time.Now,
	}
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if l == nil || !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		now := time.Now
		if l.now != nil {
			now = l.now
		}
		event.Timestamp = now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}
	event.Message = Redact(event.Message)
	event.ErrorDetail = Redact(event.ErrorDetail)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogIngest records a stored prescription.
func (l *AuditLogger) LogIngest(patientID, recordID string, chronic bool, diagnoses, medicines int, duration time.Duration) {
	l.Log(&AuditEvent{
		EventType:  AuditEventIngest,
		PatientID:  patientID,
		RecordID:   recordID,
		Success:    true,
		DurationMS: duration.Milliseconds(),
		Message:    "prescription stored",
		Details: map[string]any{
			"is_chronic": chronic,
			"diagnoses":  diagnoses,
			"medicines":  medicines,
		},
	})
}

// LogIngestError records a prescription that could not be stored.
func (l *AuditLogger) LogIngestError(patientID string, err error) {
	l.Log(&AuditEvent{
		EventType:   AuditEventIngestError,
		PatientID:   patientID,
		Success:     false,
		Message:     "prescription rejected",
		ErrorDetail: err.Error(),
	})
}

// LogIngestScheduled records a prescription handed to the workflow engine.
func (l *AuditLogger) LogIngestScheduled(patientID, workflowID string) {
	l.Log(&AuditEvent{
		EventType:  AuditEventIngestScheduled,
		PatientID:  patientID,
		WorkflowID: workflowID,
		Success:    true,
		Message:    "prescription ingestion scheduled",
	})
}

// LogInsight records a generated insight. A fallback answer is logged as
// its own event type with the reason the model could not be used.
func (l *AuditLogger) LogInsight(patientID, model string, evidence int, fallbackReason string, duration time.Duration) {
	event := &AuditEvent{
		EventType:  AuditEventInsight,
		PatientID:  patientID,
		Model:      model,
		Success:    true,
		DurationMS: duration.Milliseconds(),
		Message:    fmt.Sprintf("insight from %d history items", evidence),
		Details: map[string]any{
			"history_used": evidence,
		},
	}
	if fallbackReason != "" {
		event.EventType = AuditEventInsightFallback
		event.Success = false
		event.ErrorDetail = fallbackReason
	}
	l.Log(event)
}

// LogQuery records a knowledge base answer.
func (l *AuditLogger) LogQuery(model string, sources int, duration time.Duration, err error) {
	event := &AuditEvent{
		EventType:  AuditEventQuery,
		Model:      model,
		Success:    err == nil,
		DurationMS: duration.Milliseconds(),
		Details: map[string]any{
			"sources": sources,
		},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// LogKnowledgeReload records a knowledge base reload.
func (l *AuditLogger) LogKnowledgeReload(collection string, documents int, duration time.Duration, err error) {
	event := &AuditEvent{
		EventType:  AuditEventKnowledgeReload,
		Success:    err == nil,
		DurationMS: duration.Milliseconds(),
		Message:    fmt.Sprintf("reloaded %d documents into %s", documents, collection),
		Details: map[string]any{
			"collection": collection,
			"documents":  documents,
		},
	}
	if err != nil {
		event.Message = "knowledge base reload failed"
		event.ErrorDetail = err.Error()
	}
	l.Log(event)
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if l == nil {
		return nil
	}
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}
