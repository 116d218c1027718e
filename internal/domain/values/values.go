// Package values copies point history from a source to a destination
// historian, skipping points whose destination already holds as many values.
package values

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/histsync/internal/domain/historian"
	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/pkg/logger"
)

// Syncer copies values per point pair.
type Syncer struct {
	source      historian.Store
	destination historian.Store
	log         logger.Logger
	observe     func(Outcome, time.Duration)
}

// NewSyncer creates a Syncer.
func NewSyncer(source, destination historian.Store, opts ...Option) (*Syncer, error) {
	if source == nil || destination == nil {
		return nil, ErrNilStore
	}
	s := &Syncer{source: source, destination: destination, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SyncRange syncs every pair in order. The context is checked before each
// point. On a fatal error the partial report is returned with the error.
func (s *Syncer) SyncRange(ctx context.Context, corr *model.CorrespondenceMap, r model.TimeRange,
	filter *string) (*Report, error) {
	rep := &Report{}
	if err := r.Validate(); err != nil {
		return rep, err
	}
	for _, p := range corr.Pairs() {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if _, err := s.SyncPoint(ctx, p, r, filter, rep); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// SyncPoint syncs one pair and records the outcome in rep. A rejected write
// is reported in the outcome, not as an error; the returned error is fatal
// for the run.
func (s *Syncer) SyncPoint(ctx context.Context, p model.Pair, r model.TimeRange, filter *string,
	rep *Report) (Outcome, error) {
	start := time.Now()
	o, err := s.syncPoint(ctx, p, r, filter)
	if err != nil {
		return o, err
	}
	rep.Add(o)
	if s.observe != nil {
		s.observe(o, time.Since(start))
	}
	return o, nil
}

func (s *Syncer) syncPoint(ctx context.Context, p model.Pair, r model.TimeRange, filter *string) (Outcome, error) {
	o := Outcome{Source: p.Source, Destination: p.Destination}

	vals, err := s.source.GetValues(ctx, p.Source, nil, r, filter, false)
	if err != nil {
		return o, fmt.Errorf("read source values of %s: %w", p.Source, err)
	}
	o.SourceCount = len(vals)

	o.DestCount, err = s.destination.GetValueCount(ctx, p.Destination, nil, r, filter)
	if err != nil {
		return o, fmt.Errorf("count destination values of %s: %w", p.Destination, err)
	}

	if o.DestCount >= o.SourceCount {
		o.Skipped = true
		s.log.Debug(ctx, "point already migrated",
			logger.String("point", p.Source),
			logger.Int("source", o.SourceCount),
			logger.Int("destination", o.DestCount))
		return o, nil
	}

	failed, err := s.destination.PutValues(ctx, p.Destination, vals, model.Replace)
	switch {
	case err != nil && historian.IsConnection(err):
		return o, fmt.Errorf("write values of %s: %w", p.Destination, err)
	case err != nil:
		o.Failure = &ValueWriteError{Point: p.Destination, Attempted: len(vals), Reported: len(vals), Err: err}
	case failed > 0:
		o.Failure = &ValueWriteError{Point: p.Destination, Attempted: len(vals), Reported: failed}
		o.Written = len(vals) - failed
	default:
		o.Written = len(vals)
	}

	if o.Failure != nil {
		s.log.Warn(ctx, "value write incomplete",
			logger.String("point", p.Destination),
			logger.Int("attempted", o.Failure.Attempted),
			logger.Int("reported", o.Failure.Reported),
			logger.Error(o.Failure))
		return o, nil
	}
	s.log.Info(ctx, "point values copied",
		logger.String("point", p.Source),
		logger.Int("values", o.Written))
	return o, nil
}
