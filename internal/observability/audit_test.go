package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ==================== AuditConfig Tests ====================

func TestDefaultAuditConfig(t *testing.T) {
	cfg := DefaultAuditConfig()
	if !cfg.Enabled {
		t.Fatal("expected enabled by default")
	}
	if cfg.OutputPath != "stdout" {
		t.Fatalf("expected stdout, got %s", cfg.OutputPath)
	}
}

// ==================== AuditLogger Tests ====================

func TestAuditLogger_New_File(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")

	l, err := NewAuditLogger(&AuditConfig{
		Enabled:    true,
		OutputPath: logPath,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.LogIngest("p-1", "r-1", false, 1, 1, time.Millisecond)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"record_id":"r-1"`) {
		t.Fatalf("expected record id in log, got %s", data)
	}
}

func TestAuditLogger_New_NilConfig(t *testing.T) {
	l, err := NewAuditLogger(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l == nil {
		t.Fatal("expected non-nil logger with default config")
	}
}

func TestAuditLogger_New_BadPath(t *testing.T) {
	_, err := NewAuditLogger(&AuditConfig{
		Enabled:    true,
		OutputPath: filepath.Join(t.TempDir(), "missing", "audit.log"),
	})
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	l, err := NewAuditLogger(&AuditConfig{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Log(&AuditEvent{EventType: AuditEventIngest}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var nilLogger *AuditLogger
	nilLogger.LogInsight("p-1", "m", 1, "", time.Second)
	if err := nilLogger.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func decodeAudit(t *testing.T, buf *bytes.Buffer) AuditEvent {
	t.Helper()
	var event AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("failed to parse output %q: %v", buf.String(), err)
	}
	return event
}

func TestAuditLogger_Log_FillsDefaults(t *testing.T) {
	var buf bytes.Buffer
	l := NewAuditWriter(&buf, "test-session")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	if err := l.Log(&AuditEvent{EventType: AuditEventQuery}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := decodeAudit(t, &buf)
	if event.SessionID != "test-session" {
		t.Fatalf("expected test-session, got %s", event.SessionID)
	}
	if !event.Timestamp.Equal(fixed) {
		t.Fatalf("expected timestamp %v, got %v", fixed, event.Timestamp)
	}
}

func TestAuditLogger_SessionID_Generated(t *testing.T) {
	l := NewAuditWriter(&bytes.Buffer{}, "")
	if !strings.HasPrefix(l.sessionID, "session-") {
		t.Fatalf("expected session- prefix, got %s", l.sessionID)
	}
}

// ==================== Convenience Methods Tests ====================

func TestAuditLogger_LogIngest(t *testing.T) {
	var buf bytes.Buffer
	l := NewAuditWriter(&buf, "s")

	l.LogIngest("p-7", "rec-1", true, 2, 3, 40*time.Millisecond)

	event := decodeAudit(t, &buf)
	if event.EventType != AuditEventIngest {
		t.Fatalf("expected history.ingest, got %s", event.EventType)
	}
	if event.PatientID != "p-7" || event.RecordID != "rec-1" {
		t.Fatalf("unexpected ids: %+v", event)
	}
	if event.DurationMS != 40 {
		t.Fatalf("expected 40ms, got %d", event.DurationMS)
	}
	if event.Details["is_chronic"] != true {
		t.Fatalf("expected is_chronic detail, got %v", event.Details["is_chronic"])
	}
}

func TestAuditLogger_LogIngestError(t *testing.T) {
	var buf bytes.Buffer
	l := NewAuditWriter(&buf, "s")

	l.LogIngestError("p-7", errors.New("model returned prose"))

	event := decodeAudit(t, &buf)
	if event.Success {
		t.Fatal("expected success=false")
	}
	if event.ErrorDetail != "model returned prose" {
		t.Fatalf("unexpected error detail %q", event.ErrorDetail)
	}
}

func TestAuditLogger_RedactsErrorDetail(t *testing.T) {
	var buf bytes.Buffer
	l := NewAuditWriter(&buf, "s")

	l.LogIngestError("p-7", errors.New("upstream echoed: call 555-123-4567 or mail jane@example.com"))

	event := decodeAudit(t, &buf)
	if strings.Contains(event.ErrorDetail, "555-123-4567") || strings.Contains(event.ErrorDetail, "jane@example.com") {
		t.Fatalf("identifiers leaked: %q", event.ErrorDetail)
	}
	if event.PatientID != "p-7" {
		t.Fatalf("patient id = %q", event.PatientID)
	}
}

func TestAuditLogger_LogInsight(t *testing.T) {
	tests := []struct {
		name     string
		reason   string
		wantType AuditEventType
		wantOK   bool
	}{
		{"model answer", "", AuditEventInsight, true},
		{"fallback", "openrouter: status 503", AuditEventInsightFallback, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewAuditWriter(&buf, "s")

			l.LogInsight("p-1", "local-fallback", 4, tt.reason, time.Second)

			event := decodeAudit(t, &buf)
			if event.EventType != tt.wantType {
				t.Fatalf("expected %s, got %s", tt.wantType, event.EventType)
			}
			if event.Success != tt.wantOK {
				t.Fatalf("expected success=%v", tt.wantOK)
			}
			if event.ErrorDetail != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, event.ErrorDetail)
			}
			if event.Details["history_used"].(float64) != 4 {
				t.Fatalf("expected 4 items, got %v", event.Details["history_used"])
			}
		})
	}
}

func TestAuditLogger_LogKnowledgeReload(t *testing.T) {
	var buf bytes.Buffer
	l := NewAuditWriter(&buf, "s")

	l.LogKnowledgeReload("medical_knowledge", 15, time.Second, nil)
	l.LogKnowledgeReload("medical_knowledge", 0, time.Second, errors.New("qdrant down"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ok, failed AuditEvent
	json.Unmarshal([]byte(lines[0]), &ok)
	json.Unmarshal([]byte(lines[1]), &failed)

	if !ok.Success || ok.Details["documents"].(float64) != 15 {
		t.Fatalf("unexpected success event: %+v", ok)
	}
	if failed.Success || failed.ErrorDetail != "qdrant down" {
		t.Fatalf("unexpected failure event: %+v", failed)
	}
}

func TestAuditLogger_LogQueryAndScheduled(t *testing.T) {
	var buf bytes.Buffer
	l := NewAuditWriter(&buf, "s")

	l.LogQuery("deepseek/deepseek-r1", 3, time.Second, nil)
	l.LogIngestScheduled("p-1", "ingest-p-1-abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var query, scheduled AuditEvent
	json.Unmarshal([]byte(lines[0]), &query)
	json.Unmarshal([]byte(lines[1]), &scheduled)

	if query.EventType != AuditEventQuery || query.Model != "deepseek/deepseek-r1" {
		t.Fatalf("unexpected query event: %+v", query)
	}
	if scheduled.WorkflowID != "ingest-p-1-abc" {
		t.Fatalf("unexpected workflow id %q", scheduled.WorkflowID)
	}
}
