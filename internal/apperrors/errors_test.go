package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestValidation(t *testing.T) {
	t.Parallel()
	err := Validation("engineOptions", "may not specify workDir")

	if !errors.Is(err, ErrValidation) {
		t.Error("expected error to match ErrValidation")
	}
	if err.Error() != "may not specify workDir" {
		t.Errorf("expected message 'may not specify workDir', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "engineOptions" {
		t.Errorf("expected field 'engineOptions', got %q", appErr.Field)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	err := NotFound("container", "workflow_job.abc")

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to match ErrNotFound")
	}
	if err.Error() != "container workflow_job.abc not found" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestInternal_KeepsCauseClassification(t *testing.T) {
	t.Parallel()
	cause := FromStatus("records.update", http.StatusServiceUnavailable, "maintenance")
	err := Internal("hook.update", cause)

	if !errors.Is(err, ErrInternal) {
		t.Error("expected error to match ErrInternal")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Error("expected error to match the cause's ErrUnavailable")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Op != "hook.update" {
		t.Errorf("expected op 'hook.update', got %q", appErr.Op)
	}
}

func TestImageTooLarge_IsInvalidSubmission(t *testing.T) {
	t.Parallel()
	err := ImageTooLarge("repo@sha256:abc", fmt.Errorf("no space left on device"))

	if !errors.Is(err, ErrImageTooLarge) {
		t.Error("expected error to match ErrImageTooLarge")
	}
	if !IsInvalidSubmission(err) {
		t.Error("expected image-too-large to be an invalid submission")
	}
	if err.Error() != "Docker pull failed because image is too large." {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestLostRace(t *testing.T) {
	t.Parallel()
	err := LostRace("9001", "RECEIVED", "INVALID")

	if !errors.Is(err, ErrLostRace) {
		t.Error("expected error to match ErrLostRace")
	}
	if IsInvalidSubmission(err) {
		t.Error("lost race must not be an invalid submission")
	}
}

func TestFromStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code     int
		sentinel error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusPreconditionFailed, ErrConflict},
		{http.StatusLocked, ErrLocked},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusServiceUnavailable, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			t.Parallel()
			err := FromStatus("records.get", tt.code, "")
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("Expected %v for %d, got %v", tt.sentinel, tt.code, err)
			}
			code, ok := StatusCode(fmt.Errorf("wrapped: %w", err))
			if !ok || code != tt.code {
				t.Errorf("Expected status %d, got %d (ok=%v)", tt.code, code, ok)
			}
		})
	}
}

func TestFromStatus_Unclassified(t *testing.T) {
	t.Parallel()
	err := FromStatus("records.get", http.StatusBadGateway, "upstream")

	for _, s := range []error{ErrUnavailable, ErrConflict, ErrNotFound} {
		if errors.Is(err, s) {
			t.Errorf("502 should not match %v", s)
		}
	}
	if err.Error() != "records.get: HTTP 502: upstream" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", Validation("id", "required"), http.StatusBadRequest},
		{"not found", NotFound("container", "123"), http.StatusNotFound},
		{"conflict", Conflict("record", "123", "etag mismatch"), http.StatusConflict},
		{"internal", Internal("op", fmt.Errorf("fail")), http.StatusInternalServerError},
		{"unavailable", FromStatus("op", http.StatusServiceUnavailable, ""), http.StatusServiceUnavailable},
		{"wrapped validation", fmt.Errorf("wrap: %w", Validation("f", "m")), http.StatusBadRequest},
		{"unknown error", fmt.Errorf("unknown"), http.StatusInternalServerError},
		{"nil error", nil, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := HTTPStatus(tt.err)
			if got != tt.expected {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.expected)
			}
		})
	}
}
