// Package retry runs an operation again after transient failures, with a
// configurable backoff, optional jitter, and a retry predicate.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Func is the operation under retry. It must honor ctx.
type Func func(ctx context.Context) error

// RetryIf decides whether an error is worth another attempt.
type RetryIf func(error) bool

// Backoff yields the wait before retry number attempt, starting at 0.
type Backoff func(attempt int) time.Duration

// Fixed waits the same interval between attempts.
func Fixed(interval time.Duration) Backoff {
	return func(int) time.Duration { return interval }
}

// Exponential doubles the wait per attempt, capped at limit when given.
func Exponential(base time.Duration, limit ...time.Duration) Backoff {
	var max time.Duration
	if len(limit) > 0 {
		max = limit[0]
	}
	return func(attempt int) time.Duration {
		d := base << attempt
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

type config struct {
	attempts int
	backoff  Backoff
	jitter   float64
	retryIf  RetryIf
}

// Option customizes Do.
type Option func(*config)

// WithMaxAttempts bounds the total number of calls, first try included.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithBackoff sets the wait strategy between attempts.
func WithBackoff(b Backoff) Option {
	return func(c *config) { c.backoff = b }
}

// WithJitter widens each wait by a random share of itself, 0 to frac.
func WithJitter(frac float64) Option {
	return func(c *config) {
		if frac > 0 {
			c.jitter = frac
		}
	}
}

// WithRetryIf restricts retries to errors the predicate accepts.
func WithRetryIf(fn RetryIf) Option {
	return func(c *config) {
		if fn != nil {
			c.retryIf = fn
		}
	}
}

// retryable is the default predicate: everything except context errors.
func retryable(err error) bool {
	return err != nil &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Do calls fn until it succeeds, the predicate rejects the error, the attempt
// budget runs out, or ctx ends. The last error is returned.
func Do(ctx context.Context, fn Func, opts ...Option) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := &config{attempts: 3, backoff: Fixed(0), retryIf: retryable}
	for _, opt := range opts {
		opt(cfg)
	}

	var err error
	for attempt := 0; attempt < cfg.attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !cfg.retryIf(err) || attempt == cfg.attempts-1 {
			return err
		}

		wait := cfg.backoff(attempt)
		if cfg.jitter > 0 && wait > 0 {
			wait += time.Duration(rand.Int63n(int64(float64(wait)*cfg.jitter) + 1))
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
	return err
}
