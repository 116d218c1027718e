// Package catalog reconciles the point catalog between two historians.
package catalog

import (
	"context"
	"fmt"

	"github.com/okian/histsync/internal/domain/dedupe"
	"github.com/okian/histsync/internal/domain/historian"
	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/internal/domain/pager"
	"github.com/okian/histsync/pkg/logger"
)

// Summary describes a finished reconciliation.
type Summary struct {
	SourcePoints      int
	DestinationPoints int // after creation
	Created           int
}

// Syncer makes the destination catalog mirror the source for a query.
type Syncer struct {
	source      historian.Store
	destination historian.Store
	pageSize    int
	log         logger.Logger
	progress    func(model.Side, pager.Progress)
	created     func(batch, total int)
}

// NewSyncer creates a Syncer.
func NewSyncer(source, destination historian.Store, opts ...Option) (*Syncer, error) {
	if source == nil || destination == nil {
		return nil, ErrNilStore
	}
	s := &Syncer{
		source:      source,
		destination: destination,
		pageSize:    pager.DefaultPageSize,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pageSize <= 0 {
		return nil, fmt.Errorf("catalog: %w: %d", pager.ErrInvalidPageSize, s.pageSize)
	}
	return s, nil
}

// Reconcile creates every source point the destination lacks and pairs the
// points by name. Running it again against an unchanged source creates
// nothing and yields the same map.
func (s *Syncer) Reconcile(ctx context.Context, q model.MigrationQuery) (*model.CorrespondenceMap, Summary, error) {
	var sum Summary

	src, err := s.list(ctx, s.source, model.SideSource, q.Filter)
	if err != nil {
		return nil, sum, err
	}
	dst, err := s.list(ctx, s.destination, model.SideDestination, q.Filter)
	if err != nil {
		return nil, sum, err
	}
	sum.SourcePoints, sum.DestinationPoints = len(src), len(dst)

	if len(src) == len(dst) {
		m, err := pair(src, dst)
		if err != nil {
			return nil, sum, err
		}
		s.log.Info(ctx, "catalog already in sync",
			logger.String("query", q.Filter),
			logger.Int("points", len(src)))
		return m, sum, nil
	}

	s.log.Info(ctx, "catalog differs",
		logger.String("query", q.Filter),
		logger.Int("source", len(src)),
		logger.Int("destination", len(dst)))

	missing := subtract(src, dst)
	for start := 0; start < len(missing); start += s.pageSize {
		if err := ctx.Err(); err != nil {
			return nil, sum, err
		}
		batch := missing[start:min(start+s.pageSize, len(missing))]
		if err := s.destination.CreatePoints(ctx, batch, q.Attributes); err != nil {
			return nil, sum, fmt.Errorf("create %d destination points at batch offset %d: %w", len(batch), start, err)
		}
		sum.Created += len(batch)
		if s.created != nil {
			s.created(len(batch), sum.Created)
		}
		s.log.Info(ctx, "points created",
			logger.Int("batch", len(batch)),
			logger.Int("created", sum.Created),
			logger.Int("missing", len(missing)))
	}

	dst, err = s.list(ctx, s.destination, model.SideDestination, q.Filter)
	if err != nil {
		return nil, sum, err
	}
	sum.DestinationPoints = len(dst)
	if len(dst) != len(src) {
		return nil, sum, &CatalogMismatchError{Expected: len(src), Actual: len(dst)}
	}

	m, err := pair(src, dst)
	if err != nil {
		return nil, sum, err
	}
	return m, sum, nil
}

// list reads every point matching filter and rejects names that collide
// when case is ignored.
func (s *Syncer) list(ctx context.Context, store historian.Store, side model.Side, filter string) ([]model.Point, error) {
	fetch := func(ctx context.Context, offset, limit int) ([]model.Point, int, error) {
		return store.FindPoints(ctx, filter, offset, limit)
	}
	opts := []pager.Option{pager.WithPageSize(s.pageSize)}
	if s.progress != nil {
		opts = append(opts, pager.WithProgress(func(p pager.Progress) { s.progress(side, p) }))
	}
	pg, err := pager.New(fetch, opts...)
	if err != nil {
		return nil, err
	}

	points, prog, err := pg.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s points: %w", side, err)
	}
	s.log.Debug(ctx, "points listed",
		logger.String("side", string(side)),
		logger.Int("fetched", prog.Fetched),
		logger.Int("pages", prog.Pages))

	seen := dedupe.NewInMemoryDeduper(dedupe.WithKeyFunc(model.FoldName), dedupe.WithCapacity(len(points)))
	for _, p := range points {
		if first, dup := seen.SeenAndRecord(ctx, p.Name); dup {
			return nil, &model.AmbiguousCorrespondenceError{Side: side, Name: p.Name, Existing: first}
		}
	}
	return points, nil
}

// subtract returns the source names without a destination counterpart, in
// source order.
func subtract(src, dst []model.Point) []string {
	have := make(map[string]struct{}, len(dst))
	for _, p := range dst {
		have[model.FoldName(p.Name)] = struct{}{}
	}
	var out []string
	for _, p := range src {
		if _, ok := have[model.FoldName(p.Name)]; !ok {
			out = append(out, p.Name)
		}
	}
	return out
}

// pair maps every source point to the destination point of the same name.
func pair(src, dst []model.Point) (*model.CorrespondenceMap, error) {
	byName := make(map[string]string, len(dst))
	for _, p := range dst {
		byName[model.FoldName(p.Name)] = p.Name
	}

	m := model.NewCorrespondenceMap(len(src))
	var missing []string
	for _, p := range src {
		d, ok := byName[model.FoldName(p.Name)]
		if !ok {
			missing = append(missing, p.Name)
			continue
		}
		if err := m.Add(p.Name, d); err != nil {
			return nil, err
		}
	}
	if len(missing) > 0 {
		return nil, &CatalogMismatchError{Expected: len(src), Actual: len(dst), Missing: missing}
	}
	return m, nil
}
