// Package retry runs operations against remote stores with bounded
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"
)

// Default retry configuration constants.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	defaultMultiplier     = 2.0
	defaultJitter         = 0.1
)

// Retryer performs operations with automatic retry on failure.
// A Retryer is immutable after construction and safe for concurrent use.
type Retryer struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	multiplier     float64
	jitter         float64
	retryIf        func(error) bool
	sleep          func(ctx context.Context, d time.Duration) error
}

// New creates a Retryer. Without options it makes three attempts starting at
// a 100ms backoff and retries every error.
func New(opts ...Option) *Retryer {
	r := &Retryer{
		maxAttempts:    DefaultMaxAttempts,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		multiplier:     defaultMultiplier,
		jitter:         defaultJitter,
		sleep:          sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result describes how a retried operation finished.
type Result struct {
	Attempts int
	Err      error
}

// Do runs op until it succeeds, returns a non-retryable error, the attempts
// are used up or ctx is done.
func (r *Retryer) Do(ctx context.Context, op func(ctx context.Context) error) Result {
	backoff := r.initialBackoff
	var err error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err = op(ctx); err == nil {
			return Result{Attempts: attempt}
		}
		if r.retryIf != nil && !r.retryIf(err) {
			return Result{Attempts: attempt, Err: err}
		}
		if attempt == r.maxAttempts {
			break
		}
		if serr := r.sleep(ctx, r.withJitter(backoff)); serr != nil {
			return Result{Attempts: attempt, Err: serr}
		}
		backoff = time.Duration(float64(backoff) * r.multiplier)
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}

	return Result{Attempts: r.maxAttempts, Err: err}
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, r *Retryer, op func(ctx context.Context) (T, error)) (T, Result) {
	var out T
	res := r.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if res.Err != nil {
		var zero T
		return zero, res
	}
	return out, res
}

func (r *Retryer) withJitter(d time.Duration) time.Duration {
	if r.jitter == 0 {
		return d
	}
	spread := float64(d) * r.jitter
	return time.Duration(float64(d) + (rand.Float64()*2-1)*spread) //nolint:gosec // backoff jitter
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

// transientPatterns are error text fragments that usually indicate a
// temporary condition on the other side.
var transientPatterns = []string{ //nolint:gochecknoglobals // read-only lookup table
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"database is locked",
	"sqlite_busy",
	"slowdown",
	"503",
	"502",
	"504",
	"429",
}

// IsTransient reports whether err looks like a temporary failure worth
// retrying. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
