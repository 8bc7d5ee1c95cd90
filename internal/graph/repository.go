// Package graph projects patient history records into a clinical graph of
// patients, events, conditions and medicines.
package graph

import (
	"context"
	"errors"
	"strings"

	"github.com/efebarandurmaz/medrag/internal/history"
)

// ErrNotConfigured is returned by callers that have no graph backend.
var ErrNotConfigured = errors.New("graph backend not configured")

// ConditionSummary aggregates one condition across a patient's events.
type ConditionSummary struct {
	Condition   string   `json:"condition"`
	Occurrences int      `json:"occurrences"`
	Chronic     bool     `json:"chronic"`
	FirstSeen   string   `json:"first_seen"`
	LastSeen    string   `json:"last_seen"`
	Medicines   []string `json:"medicines"`
}

// Repository stores the graph projection of history records.
type Repository interface {
	// ProjectRecord merges the record's patient, event, conditions and
	// medicines. Projecting the same record twice is a no-op.
	ProjectRecord(ctx context.Context, rec history.Record) error
	// PatientConditions summarizes the patient's conditions, most frequent
	// first.
	PatientConditions(ctx context.Context, patientID string) ([]ConditionSummary, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

// Normalize folds a condition or medicine name to its graph key.
func Normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
