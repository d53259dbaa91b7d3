package retry

import (
	"errors"
	"slices"
	"time"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/config"
)

// Policy controls how a Runner retries.
type Policy struct {
	Attempts            int           // invocation budget for ordinary failures (default 8)
	UnavailableAttempts int           // invocation budget for ErrUnavailable (default 16)
	Initial             time.Duration // first delay (default 500ms)
	Multiplier          float64       // delay growth (default 2)
	RateLimitFactor     float64       // extra factor on a first-attempt rate limit (default 4)
	MaxInterval         time.Duration // cap on a single delay (default 24h)

	NoRetry       []error // errors.Is matches are returned immediately
	NoRetryStatus []int   // remote status codes returned immediately

	// RetryOnly, when set, restricts retries to matching errors.
	RetryOnly []error
}

// DefaultPolicy returns the record API policy: roughly 63s of backoff for
// ordinary failures and several hours for an unavailable service.
func DefaultPolicy() Policy {
	return Policy{}.withDefaults()
}

// LoadPolicyFromEnv overrides the default budgets from the environment.
func LoadPolicyFromEnv() Policy {
	p := Policy{
		Attempts:            config.GetIntEnv("RETRY_ATTEMPTS", 8),
		UnavailableAttempts: config.GetIntEnv("RETRY_UNAVAILABLE_ATTEMPTS", 16),
		Initial:             config.GetDurationEnv("RETRY_INITIAL_BACKOFF", 500*time.Millisecond),
		NoRetry:             PermanentRemote(),
	}
	return p.withDefaults()
}

// PermanentRemote lists the record API failures that retrying cannot fix.
func PermanentRemote() []error {
	return []error{
		apperrors.ErrBadRequest,
		apperrors.ErrUnauthorized,
		apperrors.ErrForbidden,
		apperrors.ErrNotFound,
		apperrors.ErrConflict,
		apperrors.ErrInvalidSubmission,
		apperrors.ErrValidation,
	}
}

// withDefaults fills in zero values with defaults.
func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 8
	}
	if p.UnavailableAttempts <= 0 {
		p.UnavailableAttempts = 16
	}
	if p.Initial <= 0 {
		p.Initial = 500 * time.Millisecond
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if p.RateLimitFactor <= 0 {
		p.RateLimitFactor = p.Multiplier * p.Multiplier
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 24 * time.Hour
	}
	return p
}

// Without returns a copy of p whose NoRetry set excludes the given errors.
func (p Policy) Without(errs ...error) Policy {
	p.NoRetry = slices.DeleteFunc(slices.Clone(p.NoRetry), func(e error) bool {
		return slices.Contains(errs, e)
	})
	return p
}

// With returns a copy of p whose NoRetry set also includes the given errors.
func (p Policy) With(errs ...error) Policy {
	p.NoRetry = append(slices.Clone(p.NoRetry), errs...)
	return p
}

func (p Policy) permanent(err error) bool {
	if len(p.RetryOnly) > 0 && !slices.ContainsFunc(p.RetryOnly, func(target error) bool {
		return errors.Is(err, target)
	}) {
		return true
	}
	for _, target := range p.NoRetry {
		if errors.Is(err, target) {
			return true
		}
	}
	if code, ok := apperrors.StatusCode(err); ok && slices.Contains(p.NoRetryStatus, code) {
		return true
	}
	return false
}

func (p Policy) budget(err error) int {
	if errors.Is(err, apperrors.ErrUnavailable) {
		return p.UnavailableAttempts
	}
	return p.Attempts
}
