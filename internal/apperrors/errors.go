// Package apperrors provides structured application errors and the failure
// taxonomy shared by the record client, the container lifecycle and the
// reconciliation loop.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
	ErrRateLimited  = errors.New("too many requests")
	ErrLocked       = errors.New("locked")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrInvalidSubmission marks failures attributable to the submitted work
	// item itself. They close the item instead of halting the pipeline.
	ErrInvalidSubmission = errors.New("invalid submission")

	// ErrImageTooLarge is terminal: the image cannot fit on the host.
	ErrImageTooLarge = fmt.Errorf("image too large: %w", ErrInvalidSubmission)

	// ErrLostRace is returned when a record changed state underneath a
	// pending update and the update was abandoned.
	ErrLostRace = errors.New("record changed concurrently")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "engineOptions")
	Resource string // For not found/conflict (e.g., "container")
	Op       string // Operation that failed (e.g., "docker.stop")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so a wrapped remote
// failure keeps its own classification.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// InvalidSubmission creates a submitter-facing error. The message is shown
// to the submitter verbatim.
func InvalidSubmission(message string, cause error) error {
	return &Error{
		Sentinel: ErrInvalidSubmission,
		Message:  message,
		Cause:    cause,
	}
}

// ImageTooLarge creates the terminal pull failure for oversized images.
func ImageTooLarge(image string, cause error) error {
	return &Error{
		Sentinel: ErrImageTooLarge,
		Message:  "Docker pull failed because image is too large.",
		Resource: image,
		Op:       "docker.pull",
		Cause:    cause,
	}
}

// LostRace reports that record id moved from the expected state.
func LostRace(id, expected, actual string) error {
	return &Error{
		Sentinel: ErrLostRace,
		Message:  fmt.Sprintf("record %s is %s, expected %s", id, actual, expected),
		Resource: id,
	}
}

// IsInvalidSubmission reports whether err closes the work item rather than
// halting the pipeline.
func IsInvalidSubmission(err error) bool {
	return errors.Is(err, ErrInvalidSubmission)
}
