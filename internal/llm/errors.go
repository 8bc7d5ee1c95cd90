package llm

import (
	"errors"
	"fmt"
)

// UpstreamError reports a failed call to an external collaborator: a
// language model, an embedding endpoint or the vector store.
type UpstreamError struct {
	Service    string // "openrouter", "anthropic", "qdrant", ...
	StatusCode int    // HTTP status when known, 0 otherwise
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Service, msg)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err as an UpstreamError for service. An error that already
// is an UpstreamError is returned unchanged.
func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Service: service, Err: err}
}

// ErrNotConfigured is returned when no language model credential is set.
var ErrNotConfigured = errors.New("language model credential is not configured")
