package repository

import (
	"github.com/okian/histsync/pkg/logger"
	"github.com/okian/histsync/pkg/retry"
)

type settings struct {
	log          logger.Logger
	retryer      *retry.Retryer
	maxOpenConns int
	busyTimeout  int // milliseconds
}

func defaultSettings() settings {
	return settings{
		log:          logger.Nop(),
		retryer:      retry.New(retry.WithRetryIf(retry.IsTransient)),
		maxOpenConns: 4,
		busyTimeout:  5000,
	}
}

// Option applies a configuration option to a store.
type Option func(*settings)

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRetryer sets the policy used for transient SQLite failures such as
// SQLITE_BUSY.
func WithRetryer(r *retry.Retryer) Option {
	return func(s *settings) {
		if r != nil {
			s.retryer = r
		}
	}
}

// WithMaxOpenConns bounds the SQLite connection pool.
func WithMaxOpenConns(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithBusyTimeout sets how long SQLite waits on a locked database, in
// milliseconds.
func WithBusyTimeout(ms int) Option {
	return func(s *settings) {
		if ms > 0 {
			s.busyTimeout = ms
		}
	}
}
