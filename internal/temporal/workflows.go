package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/medrag/internal/history"
)

// Error types that never succeed on retry.
const (
	ErrTypeStructuring = "StructuringError"
	ErrTypeInput       = "InputError"
)

// IngestInput holds the workflow parameters.
type IngestInput struct {
	PatientID string
	RawText   string
}

// IngestOutput summarizes the stored record.
type IngestOutput struct {
	RecordID  string
	PatientID string
	Date      string
	IsChronic bool
	Diagnosis []string
	Medicines []string
}

// IngestPrescriptionWorkflow structures a prescription, freezes it into a
// history record and stores it. The record is built in its own activity so
// a retried store writes the same id and date.
func IngestPrescriptionWorkflow(ctx workflow.Context, input IngestInput) (*IngestOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{ErrTypeStructuring, ErrTypeInput},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *Activities

	var ex history.Extraction
	if err := workflow.ExecuteActivity(ctx, a.StructurePrescription, input).Get(ctx, &ex); err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}

	var rec history.Record
	if err := workflow.ExecuteActivity(ctx, a.BuildRecord, input, ex).Get(ctx, &rec); err != nil {
		return nil, fmt.Errorf("build record: %w", err)
	}

	if err := workflow.ExecuteActivity(ctx, a.StoreRecord, rec).Get(ctx, nil); err != nil {
		return nil, fmt.Errorf("store record %s: %w", rec.ID, err)
	}

	return &IngestOutput{
		RecordID:  rec.ID,
		PatientID: rec.PatientID,
		Date:      rec.Date,
		IsChronic: rec.IsChronic,
		Diagnosis: rec.Diagnosis,
		Medicines: rec.Medicines,
	}, nil
}
