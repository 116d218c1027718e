// Package search finds the most recent value of a point that satisfies a
// predicate by walking backward through exponentially growing windows.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/histsync/internal/domain/historian"
	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/pkg/logger"
)

// Indefinite is the timestamp text reported when a search is exhausted.
const Indefinite = "Indefinite"

// Defaults for the convenience searches.
const (
	DefaultStartDays          = -365
	DefaultEndDays            = 0
	DefaultOccurrenceAttempts = 5
	DefaultLastValidAttempts  = 15

	// maxLookbackDays bounds how far back windows may reach, roughly 100k years.
	maxLookbackDays = 36_500_000
)

// Predicate decides whether a value qualifies.
type Predicate func(v any) bool

// Equals matches values whose text equals that of target.
func Equals(target any) Predicate {
	want := fmt.Sprint(target)
	return func(v any) bool { return fmt.Sprint(v) == want }
}

// DiffersFrom matches values whose text differs from that of sentinel.
func DiffersFrom(sentinel any) Predicate {
	bad := fmt.Sprint(sentinel)
	return func(v any) bool { return fmt.Sprint(v) != bad }
}

// Result is the outcome of a search. Found is false when the attempts were
// exhausted; that is not an error.
type Result struct {
	Point     string
	Found     bool
	Timestamp time.Time
	Value     any
	Windows   []model.TimeRange // queried, newest first
}

// Attempts returns the number of windows queried.
func (r Result) Attempts() int {
	return len(r.Windows)
}

// Expansions returns how many times the window was widened.
func (r Result) Expansions() int {
	return max(len(r.Windows)-1, 0)
}

// TimestampText renders the timestamp, or Indefinite when nothing was found.
func (r Result) TimestampText() string {
	if !r.Found {
		return Indefinite
	}
	return r.Timestamp.UTC().Format(time.RFC3339)
}

// Searcher runs backward searches against one store.
type Searcher struct {
	store              historian.Store
	now                func() time.Time
	log                logger.Logger
	startDays          int
	endDays            int
	occurrenceAttempts int
	lastValidAttempts  int
	observe            func(Result)
}

// New creates a Searcher.
func New(store historian.Store, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	s := &Searcher{
		store:              store,
		now:                time.Now,
		log:                logger.Nop(),
		startDays:          DefaultStartDays,
		endDays:            DefaultEndDays,
		occurrenceAttempts: DefaultOccurrenceAttempts,
		lastValidAttempts:  DefaultLastValidAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FindLastOccurrence finds the newest value of point equal to target.
func (s *Searcher) FindLastOccurrence(ctx context.Context, point string, attribute *string, target any) (Result, error) {
	return s.FindTimestamp(ctx, point, attribute, Equals(target), s.startDays, s.endDays, s.occurrenceAttempts)
}

// FindLastValid finds the newest value of point that differs from invalid.
func (s *Searcher) FindLastValid(ctx context.Context, point string, attribute *string, invalid any) (Result, error) {
	return s.FindTimestamp(ctx, point, attribute, DiffersFrom(invalid), s.startDays, s.endDays, s.lastValidAttempts)
}

// FindTimestamp searches the window [now+startOffsetDays, now+endOffsetDays]
// newest first. When nothing qualifies, the next window ends where the last
// began and is twice as wide. At most maxAttempts windows are queried. The
// first window must be at least one day wide, so startOffsetDays ==
// endOffsetDays is a SearchParameterError.
func (s *Searcher) FindTimestamp(ctx context.Context, point string, attribute *string, pred Predicate,
	startOffsetDays, endOffsetDays, maxAttempts int) (Result, error) {
	res := Result{Point: point}

	switch {
	case pred == nil:
		return res, &SearchParameterError{Field: "predicate", Reason: "must not be nil"}
	case startOffsetDays > 0:
		return res, &SearchParameterError{Field: "startOffsetDays", Reason: fmt.Sprintf("%d is in the future", startOffsetDays)}
	case endOffsetDays > 0:
		return res, &SearchParameterError{Field: "endOffsetDays", Reason: fmt.Sprintf("%d is in the future", endOffsetDays)}
	case startOffsetDays >= endOffsetDays:
		return res, &SearchParameterError{Field: "startOffsetDays",
			Reason: fmt.Sprintf("%d must be before endOffsetDays %d", startOffsetDays, endOffsetDays)}
	case -startOffsetDays > maxLookbackDays:
		return res, &SearchParameterError{Field: "startOffsetDays", Reason: "reaches too far back"}
	}

	now := s.now().UTC()
	endDays := endOffsetDays
	width := endOffsetDays - startOffsetDays

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		startDays := endDays - width
		if -startDays > maxLookbackDays {
			break
		}

		w := model.TimeRange{Start: now.AddDate(0, 0, startDays), End: now.AddDate(0, 0, endDays)}
		res.Windows = append(res.Windows, w)

		vals, err := s.store.GetValues(ctx, point, attribute, w, nil, true)
		if err != nil {
			return res, fmt.Errorf("search %s in %s: %w", point, w, err)
		}
		for _, v := range vals {
			if pred(v.Value) {
				res.Found, res.Timestamp, res.Value = true, v.Timestamp, v.Value
				s.finish(ctx, res)
				return res, nil
			}
		}
		s.log.Debug(ctx, "window exhausted",
			logger.String("point", point),
			logger.Int("attempt", attempt),
			logger.Int("start_days", startDays),
			logger.Int("end_days", endDays),
			logger.Int("values", len(vals)))

		endDays = startDays
		width *= 2
	}

	s.finish(ctx, res)
	return res, nil
}

func (s *Searcher) finish(ctx context.Context, res Result) {
	s.log.Info(ctx, "search finished",
		logger.String("point", res.Point),
		logger.Bool("found", res.Found),
		logger.String("timestamp", res.TimestampText()),
		logger.Int("windows", res.Attempts()))
	if s.observe != nil {
		s.observe(res)
	}
}
