package app

import (
	"context"
	"errors"

	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/internal/domain/search"
	"github.com/okian/histsync/internal/seed"
	"github.com/okian/histsync/pkg/logger"
	"github.com/okian/histsync/pkg/metrics"
)

// SearchRequest describes a backward search. Exactly one of Equals and
// DiffersFrom must be set.
type SearchRequest struct {
	Side        model.Side
	Point       string
	Attribute   string // empty searches the primary stream
	Equals      *string
	DiffersFrom *string
	StartDays   int
	EndDays     int
	MaxAttempts int // 0 uses the configured default for the predicate kind
}

// Search finds the newest value of a point matching the request.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (res search.Result, err error) {
	var (
		pred     search.Predicate
		attempts = req.MaxAttempts
	)
	switch {
	case req.Equals != nil && req.DiffersFrom == nil:
		pred = search.Equals(*req.Equals)
		if attempts == 0 {
			attempts = e.cfg.SearchMaxAttempts
		}
	case req.DiffersFrom != nil && req.Equals == nil:
		pred = search.DiffersFrom(*req.DiffersFrom)
		if attempts == 0 {
			attempts = e.cfg.SearchLastValidMaxAttempts
		}
	default:
		return search.Result{Point: req.Point}, ErrNoPredicate
	}

	store, release, err := e.store(ctx, req.Side)
	if err != nil {
		return search.Result{Point: req.Point}, err
	}
	defer func() {
		err = errors.Join(err, release())
	}()

	s, err := search.New(store,
		search.WithClock(e.now),
		search.WithLogger(e.log.Named("search")),
		search.WithObserver(func(r search.Result) {
			outcome := "exhausted"
			if r.Found {
				outcome = "found"
			}
			metrics.RecordSearch(outcome, r.Attempts())
		}),
	)
	if err != nil {
		return search.Result{Point: req.Point}, err
	}

	var attr *string
	if req.Attribute != "" {
		attr = &req.Attribute
	}
	return s.FindTimestamp(ctx, req.Point, attr, pred, req.StartDays, req.EndDays, attempts)
}

// Seed writes synthetic points and history to one side.
func (e *Engine) Seed(ctx context.Context, side model.Side, cfg seed.Config) (st seed.Stats, err error) {
	store, release, err := e.store(ctx, side)
	if err != nil {
		return seed.Stats{}, err
	}
	defer func() {
		err = errors.Join(err, release())
	}()

	if cfg.BatchSize == 0 {
		cfg.BatchSize = e.cfg.PageSize
	}
	if cfg.Attributes == nil {
		cfg.Attributes = e.cfg.PointAttributes
	}
	return seed.Run(ctx, store, cfg, e.log.Named("seed"))
}

// PutValue inserts or replaces one value of a point. A nil attribute
// addresses the primary stream.
func (e *Engine) PutValue(ctx context.Context, side model.Side, point string, attribute *string,
	v model.Value) (err error) {
	store, release, err := e.store(ctx, side)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, release())
	}()

	if err := store.InsertValue(ctx, point, attribute, v); err != nil {
		return err
	}
	e.log.Info(ctx, "value written",
		logger.String("side", string(side)),
		logger.String("point", point),
		logger.String("attribute", stream(attribute)),
		logger.Time("timestamp", v.Timestamp))
	return nil
}

// DeleteValues removes the values of one stream of a point inside r and
// returns how many were removed.
func (e *Engine) DeleteValues(ctx context.Context, side model.Side, point string, attribute *string,
	r model.TimeRange) (n int, err error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	store, release, err := e.store(ctx, side)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = errors.Join(err, release())
	}()

	n, err = store.DeleteValues(ctx, point, attribute, r)
	if err != nil {
		return 0, err
	}
	e.log.Info(ctx, "values deleted",
		logger.String("side", string(side)),
		logger.String("point", point),
		logger.String("attribute", stream(attribute)),
		logger.Int("removed", n))
	return n, nil
}

// stream names an attribute stream for logs.
func stream(attribute *string) string {
	if attribute == nil {
		return "primary"
	}
	return *attribute
}
