package temporal

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/medrag/internal/history"
)

// Ingester is the part of the engine the ingestion activities drive.
type Ingester interface {
	Structure(ctx context.Context, rawText string) (*history.Extraction, error)
	BuildRecord(patientID string, ex *history.Extraction, rawText string) (history.Record, error)
	StoreRecord(ctx context.Context, rec history.Record) error
}

// Activities holds the resources injected into activities at worker setup.
type Activities struct {
	Ingester Ingester
}

// StructurePrescription extracts the structured form of the prescription.
// Malformed model output and empty text fail without retry.
func (a *Activities) StructurePrescription(ctx context.Context, input IngestInput) (*history.Extraction, error) {
	ex, err := a.Ingester.Structure(ctx, input.RawText)
	if err != nil {
		return nil, classify(err)
	}
	return ex, nil
}

// BuildRecord resolves the record id and date once.
func (a *Activities) BuildRecord(_ context.Context, input IngestInput, ex history.Extraction) (history.Record, error) {
	rec, err := a.Ingester.BuildRecord(input.PatientID, &ex, input.RawText)
	if err != nil {
		return history.Record{}, classify(err)
	}
	return rec, nil
}

// StoreRecord upserts the record; retries overwrite the same point.
func (a *Activities) StoreRecord(ctx context.Context, rec history.Record) error {
	return classify(a.Ingester.StoreRecord(ctx, rec))
}

// classify marks errors that cannot succeed on retry as non-retryable.
// Everything else, upstream failures included, stays retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *history.StructuringError
	if errors.As(err, &se) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeStructuring, err)
	}
	var ie *history.InputError
	if errors.As(err, &ie) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInput, err)
	}
	return err
}
