package app

import (
	"context"
	"time"

	"github.com/okian/histsync/internal/adapters/archive"
	"github.com/okian/histsync/internal/adapters/notify"
	"github.com/okian/histsync/internal/adapters/repository"
	"github.com/okian/histsync/pkg/logger"
)

// OpenFunc opens a historian by driver name and DSN.
type OpenFunc func(ctx context.Context, driver, dsn string, opts ...repository.Option) (repository.Historian, error)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock replaces time.Now for run stamps and search windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithOpener replaces repository.Open.
func WithOpener(open OpenFunc) Option {
	return func(e *Engine) {
		if open != nil {
			e.open = open
		}
	}
}

// WithStores makes the engine use already open stores instead of opening
// them from the configuration. The caller keeps ownership and closes them.
func WithStores(source, destination repository.Historian) Option {
	return func(e *Engine) {
		e.source, e.destination = source, destination
	}
}

// WithArchiver replaces the archiver built from the configuration.
func WithArchiver(a *archive.Archiver) Option {
	return func(e *Engine) {
		e.archiver = a
	}
}

// WithNotifier replaces the mailer built from the configuration.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}
