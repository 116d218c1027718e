package search

import (
	"time"

	"github.com/okian/histsync/pkg/logger"
)

// Option configures a Searcher.
type Option func(*Searcher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Searcher) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Searcher) {
		if l != nil {
			s.log = l
		}
	}
}

// WithWindow sets the initial window offsets, in days relative to now, used
// by FindLastOccurrence and FindLastValid.
func WithWindow(startDays, endDays int) Option {
	return func(s *Searcher) {
		s.startDays, s.endDays = startDays, endDays
	}
}

// WithOccurrenceAttempts sets the window budget of FindLastOccurrence.
func WithOccurrenceAttempts(n int) Option {
	return func(s *Searcher) {
		s.occurrenceAttempts = n
	}
}

// WithLastValidAttempts sets the window budget of FindLastValid.
func WithLastValidAttempts(n int) Option {
	return func(s *Searcher) {
		s.lastValidAttempts = n
	}
}

// WithObserver is called with every finished search.
func WithObserver(fn func(Result)) Option {
	return func(s *Searcher) {
		s.observe = fn
	}
}
