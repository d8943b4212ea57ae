package model

import "fmt"

// Failure codes. They follow the error taxonomy of the client: transport
// failures never reach a caller as a Go error, they are classified here.
const (
	ErrTransportFailure    = "TRANSPORT_FAILURE"
	ErrServerFailure       = "SERVER_FAILURE"
	ErrTimeout             = "TIMEOUT"
	ErrValidationFailure   = "VALIDATION_FAILURE"
	ErrPartialBatchFailure = "PARTIAL_BATCH_FAILURE"
	ErrDecodeFailure       = "DECODE_FAILURE"
	ErrCancelled           = "CANCELLED"
	ErrExportFailure       = "EXPORT_FAILURE"
)

// ErrorEnvelope is a classified failure. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Status  int          `json:"status,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidationError returns a VALIDATION_FAILURE with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationFailure,
		Message: "One or more fields are invalid",
		Details: details,
	}
}
