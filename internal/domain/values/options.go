package values

import (
	"time"

	"github.com/okian/histsync/pkg/logger"
)

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.log = l
		}
	}
}

// WithObserver is called after every point with its outcome and duration.
func WithObserver(fn func(Outcome, time.Duration)) Option {
	return func(s *Syncer) {
		s.observe = fn
	}
}
