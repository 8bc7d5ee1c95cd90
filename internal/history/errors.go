package history

import "fmt"

// StructuringError reports model output that is not the required extraction
// JSON shape. It is never defaulted away.
type StructuringError struct {
	Reason string
	Output string // model output, truncated
	Err    error
}

func (e *StructuringError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("structuring prescription: %s: %v", e.Reason, e.Err)
	}
	return "structuring prescription: " + e.Reason
}

func (e *StructuringError) Unwrap() error { return e.Err }

// InputError reports a client-side problem: a missing patient id or text that
// is empty or could not be detected.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NewInputError creates an InputError.
func NewInputError(field, message string) *InputError {
	return &InputError{Field: field, Message: message}
}
