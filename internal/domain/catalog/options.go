package catalog

import (
	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/internal/domain/pager"
	"github.com/okian/histsync/pkg/logger"
)

// Option configures a Syncer.
type Option func(*Syncer)

// WithPageSize bounds listing requests and creation batches.
func WithPageSize(n int) Option {
	return func(s *Syncer) {
		s.pageSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.log = l
		}
	}
}

// WithProgress observes listing progress on either side.
func WithProgress(fn func(side model.Side, p pager.Progress)) Option {
	return func(s *Syncer) {
		s.progress = fn
	}
}

// WithCreated observes every creation batch with the running created count.
func WithCreated(fn func(batch, total int)) Option {
	return func(s *Syncer) {
		s.created = fn
	}
}
