package worker

import (
	"github.com/okian/histsync/pkg/logger"
)

type settings struct {
	name   string
	logger logger.Logger
}

// Option applies a configuration option to a worker or pool.
type Option func(*settings)

// WithName sets the worker name for identification and logging. Pools
// suffix it with the worker index.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}
