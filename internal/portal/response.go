// Package portal serves the state containers as JSON over a local HTTP
// server, so a browser or script can watch the same view models the text
// views render.
package portal

import (
	"encoding/json"
	"net/http"

	"github.com/pitabwire/opsdesk/model"
)

// statusForCode maps failure codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrTransportFailure:    http.StatusBadGateway,
	model.ErrServerFailure:       http.StatusBadGateway,
	model.ErrTimeout:             http.StatusGatewayTimeout,
	model.ErrValidationFailure:   http.StatusUnprocessableEntity,
	model.ErrPartialBatchFailure: http.StatusBadGateway,
	model.ErrDecodeFailure:       http.StatusBadGateway,
	model.ErrCancelled:           http.StatusServiceUnavailable,
	model.ErrExportFailure:       http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for a failure code. Unknown codes map
// to 500.
func StatusFor(code string) int {
	if s, ok := statusForCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorResponse wraps an ErrorEnvelope for JSON serialization.
type errorResponse struct {
	Error *model.ErrorEnvelope `json:"error"`
}

// WriteError writes an ErrorEnvelope as a JSON error response.
func WriteError(w http.ResponseWriter, err *model.ErrorEnvelope) {
	WriteJSON(w, StatusFor(err.Code), errorResponse{Error: err})
}

// WriteNotFound writes a 404 for an unknown resource.
func WriteNotFound(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusNotFound, errorResponse{Error: &model.ErrorEnvelope{
		Code:    "NOT_FOUND",
		Message: msg,
		Status:  http.StatusNotFound,
	}})
}

// WriteValidationError writes a 422 with field-level details.
func WriteValidationError(w http.ResponseWriter, details []model.FieldError) {
	WriteError(w, model.NewValidationError(details))
}

// actionResponse is the body of every mutating portal call: the action's
// result next to the state it left behind.
type actionResponse struct {
	model.Result
	State any `json:"state"`
}

// WriteResult writes an action result. Failures use the status mapped from
// their code; the body always carries the resulting state.
func WriteResult(w http.ResponseWriter, res model.Result, state any) {
	status := http.StatusOK
	if !res.Success {
		status = StatusFor(res.Code)
	}
	WriteJSON(w, status, actionResponse{Result: res, State: state})
}
