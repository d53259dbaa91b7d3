package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// RemoteError is a failed call to the remote record API.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
	sentinel   error
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

// Unwrap returns the sentinel matching the status code, if any.
func (e *RemoteError) Unwrap() error {
	return e.sentinel
}

// FromStatus builds a RemoteError classified by its HTTP status code.
func FromStatus(op string, statusCode int, message string) error {
	return &RemoteError{
		Op:         op,
		StatusCode: statusCode,
		Message:    message,
		sentinel:   sentinelFor(statusCode),
	}
}

func sentinelFor(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return ErrConflict
	case http.StatusLocked:
		return ErrLocked
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusServiceUnavailable:
		return ErrUnavailable
	default:
		return nil
	}
}

// StatusCode returns the remote status code carried by err.
func StatusCode(err error) (int, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.StatusCode, true
	}
	return 0, false
}

// HTTPStatus maps an error to the appropriate HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
