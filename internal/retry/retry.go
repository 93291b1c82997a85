// Package retry retries transient failures with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/bensun/jobdigest/internal/model"
)

// Policy configures Do. MaxRetries is the number of additional attempts after
// the first failure; BaseDelay is doubled on each subsequent retry.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Logger     *slog.Logger
}

// Do runs op, retrying transient errors according to p. The last error is
// returned once retries are exhausted or a permanent error is seen.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	v, err := op(ctx)
	if err == nil || !IsRetryable(err) {
		return v, err
	}

	lastErr := err
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		delay := p.backoffDelay(attempt, lastErr)

		// A wait that cannot finish before the deadline only burns the budget.
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
			break
		}

		if p.Logger != nil {
			p.Logger.Warn("retrying after transient error",
				"attempt", attempt,
				"max_retries", p.MaxRetries,
				"delay", delay,
				"error", lastErr,
			)
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		v, err = op(ctx)
		if err == nil {
			return v, nil
		}
		if !IsRetryable(err) {
			return v, err
		}
		lastErr = err
	}

	var zero T
	return zero, lastErr
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func (p Policy) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	delay := p.BaseDelay << (attempt - 1)
	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}

// IsRetryable reports whether err is a transient failure worth retrying:
// network errors, 429 and 5xx. Context errors, other 4xx and anything marked
// with model.Permanent are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var permErr *model.PermanentError
	if errors.As(err, &permErr) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}
	return true
}

// Fetcher is a model.Fetcher decorator that retries transient failures.
type Fetcher struct {
	inner  model.Fetcher
	policy Policy
}

// NewFetcher wraps inner with p.
func NewFetcher(inner model.Fetcher, p Policy) *Fetcher {
	return &Fetcher{inner: inner, policy: p}
}

// Fetch delegates to the wrapped fetcher, retrying transient errors.
func (f *Fetcher) Fetch(ctx context.Context, src model.SourceDescriptor) ([]model.RawItem, error) {
	p := f.policy
	if p.Logger != nil {
		p.Logger = p.Logger.With("source", src.Name)
	}
	return Do(ctx, p, func(ctx context.Context) ([]model.RawItem, error) {
		return f.inner.Fetch(ctx, src)
	})
}
