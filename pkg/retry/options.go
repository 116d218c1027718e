package retry

import (
	"context"
	"time"
)

// Option configures a Retryer.
type Option func(*Retryer)

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) Option {
	return func(r *Retryer) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithInitialBackoff sets the delay before the first retry.
func WithInitialBackoff(d time.Duration) Option {
	return func(r *Retryer) {
		if d > 0 {
			r.initialBackoff = d
		}
	}
}

// WithMaxBackoff caps the delay between attempts.
func WithMaxBackoff(d time.Duration) Option {
	return func(r *Retryer) {
		if d > 0 {
			r.maxBackoff = d
		}
	}
}

// WithMultiplier sets the backoff growth factor.
func WithMultiplier(m float64) Option {
	return func(r *Retryer) {
		if m >= 1 {
			r.multiplier = m
		}
	}
}

// WithJitter sets the relative jitter in [0, 1].
func WithJitter(j float64) Option {
	return func(r *Retryer) {
		if j >= 0 && j <= 1 {
			r.jitter = j
		}
	}
}

// WithRetryIf restricts retries to errors for which fn returns true.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *Retryer) {
		r.retryIf = fn
	}
}

// WithSleeper replaces the wait between attempts.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Retryer) {
		if fn != nil {
			r.sleep = fn
		}
	}
}
