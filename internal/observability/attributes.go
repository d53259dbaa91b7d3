// Package observability provides the hook's metrics.
package observability

import (
	"errors"
	"fmt"
	"strings"
	"workflowhook/internal/apperrors"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrQueue   = "queue"
	attrOutcome = "outcome"
	attrSubject = "subject"
	attrError   = "error"
	attrSuccess = "success"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// /v1/jobs/workflow_job.9700001 -> /v1/jobs/{name}
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func queueAttr(queueID string) attribute.KeyValue {
	return attribute.String(attrQueue, queueID)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

func subjectAttr(subject string) attribute.KeyValue {
	return attribute.String(attrSubject, subject)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// errorAttr classifies err by its sentinel to keep cardinality bounded.
func errorAttr(err error) attribute.KeyValue {
	return attribute.String(attrError, errorClass(err))
}

var errorClasses = []struct {
	sentinel error
	name     string
}{
	{apperrors.ErrConflict, "conflict"},
	{apperrors.ErrLostRace, "lost_race"},
	{apperrors.ErrRateLimited, "rate_limited"},
	{apperrors.ErrUnavailable, "unavailable"},
	{apperrors.ErrNotFound, "not_found"},
	{apperrors.ErrInvalidSubmission, "invalid_submission"},
	{apperrors.ErrInternal, "internal"},
}

func errorClass(err error) string {
	for _, c := range errorClasses {
		if errors.Is(err, c.sentinel) {
			return c.name
		}
	}
	return "other"
}

// normalizePath replaces dynamic path segments with placeholders.
func normalizePath(path string) string {
	const prefix = "/v1/jobs/"
	if len(path) > len(prefix) && strings.HasPrefix(path, prefix) {
		return "/v1/jobs/{name}"
	}
	return path
}
