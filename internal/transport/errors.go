package transport

import (
	"context"
	"errors"
	"fmt"
)

// ResponseError is returned for any non-2xx response.
type ResponseError struct {
	StatusCode int
	Body       []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("request failed with status code %d", e.StatusCode)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not a
// *ResponseError.
func StatusCode(err error) int {
	var rerr *ResponseError
	if errors.As(err, &rerr) {
		return rerr.StatusCode
	}
	return 0
}

// IsTimeout reports whether err is a request timeout, either the client
// timeout or a context deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err)
}

// IsCanceled reports whether err was caused by context cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
