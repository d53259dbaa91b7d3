// Package retry executes fallible operations with exponential backoff,
// separating retriable failures from permanent ones and optionally
// refreshing stale input between attempts.
package retry

import (
	"context"
	"errors"
	"time"
	"workflowhook/internal/apperrors"

	"github.com/cenkalti/backoff/v4"
)

// Executable is an operation over an input value.
type Executable[In, Out any] interface {
	Execute(ctx context.Context, in In) (Out, error)
}

// Refresher is implemented by operations whose input can go stale, e.g. a
// record whose version changed. Refresh runs between attempts.
type Refresher[In any] interface {
	Refresh(ctx context.Context, in In) (In, error)
}

// Op adapts a pair of functions into an Executable. RefreshFn may be nil.
type Op[In, Out any] struct {
	ExecuteFn func(ctx context.Context, in In) (Out, error)
	RefreshFn func(ctx context.Context, in In) (In, error)
}

func (o Op[In, Out]) Execute(ctx context.Context, in In) (Out, error) {
	return o.ExecuteFn(ctx, in)
}

func (o Op[In, Out]) Refresh(ctx context.Context, in In) (In, error) {
	if o.RefreshFn == nil {
		return in, nil
	}
	return o.RefreshFn(ctx, in)
}

// Runner applies a Policy.
type Runner struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error

	// OnRetry is called before each sleep with the attempt that failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithSleep replaces the context-aware sleep (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) {
		r.sleep = fn
	}
}

// WithOnRetry registers a retry observer.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(r *Runner) {
		r.OnRetry = fn
	}
}

// New creates a Runner. Zero policy fields take defaults.
func New(policy Policy, opts ...Option) *Runner {
	r := &Runner{
		policy: policy.withDefaults(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the effective policy.
func (r *Runner) Policy() Policy {
	return r.policy
}

// Execute runs op with in until it succeeds, fails permanently, or the
// attempt budget is spent. Cancellation during a sleep returns the last
// failure of op, not the context error.
func Execute[In, Out any](ctx context.Context, r *Runner, op Executable[In, Out], in In) (Out, error) {
	var (
		b        *backoff.ExponentialBackOff
		lastErr  error
		refresh  Refresher[In]
		hasFresh bool
	)
	refresh, hasFresh = op.(Refresher[In])

	for attempt := 1; ; attempt++ {
		out, err := op.Execute(ctx, in)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if r.policy.permanent(err) || attempt >= r.policy.budget(err) {
			return out, lastErr
		}

		if b == nil {
			b = r.newBackOff(attempt == 1 && errors.Is(err, apperrors.ErrRateLimited))
		}
		delay := b.NextBackOff()
		if r.OnRetry != nil {
			r.OnRetry(attempt, delay, err)
		}
		if r.sleep(ctx, delay) != nil {
			return out, lastErr
		}

		if hasFresh {
			fresh, ferr := refresh.Refresh(ctx, in)
			if ferr != nil {
				var zero Out
				return zero, ferr
			}
			in = fresh
		}
	}
}

// Do runs fn under r's policy.
func Do[Out any](ctx context.Context, r *Runner, fn func(ctx context.Context) (Out, error)) (Out, error) {
	return Execute[struct{}, Out](ctx, r, Op[struct{}, Out]{
		ExecuteFn: func(ctx context.Context, _ struct{}) (Out, error) { return fn(ctx) },
	}, struct{}{})
}

// Run is Do for operations without a result.
func Run(ctx context.Context, r *Runner, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// newBackOff builds the delay sequence. The sequence starts on the first
// failure, so a first-attempt rate limit scales the initial interval.
func (r *Runner) newBackOff(rateLimited bool) *backoff.ExponentialBackOff {
	initial := r.policy.Initial
	if rateLimited {
		initial = time.Duration(float64(initial) * r.policy.RateLimitFactor)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = r.policy.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = r.policy.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
