package model

// Envelope is the uniform outcome of every backend call. On success Data
// carries the server payload; on failure Data holds a safe default (an empty
// list, a zero record) and Message a human-readable diagnostic.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message"`
	// Code classifies failures (see errors.go). Empty on success.
	Code string `json:"code,omitempty"`
}

// OK builds a successful envelope.
func OK[T any](data T, message string) Envelope[T] {
	return Envelope[T]{Success: true, Data: data, Message: message}
}

// Fail builds a failed envelope carrying the given safe default.
func Fail[T any](fallback T, code, message string) Envelope[T] {
	return Envelope[T]{Success: false, Data: fallback, Message: message, Code: code}
}

// Result returns the data-less view of the envelope.
func (e Envelope[T]) Result() Result {
	return Result{Success: e.Success, Message: e.Message, Code: e.Code}
}

// Result is what state container actions resolve to.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Succeeded returns a successful Result.
func Succeeded(message string) Result {
	return Result{Success: true, Message: message}
}

// Failed returns a failed Result.
func Failed(code, message string) Result {
	return Result{Success: false, Message: message, Code: code}
}
