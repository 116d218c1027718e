// Package pager splits unbounded store listings into bounded requests.
package pager

import (
	"context"
	"fmt"
	"iter"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 10_000

// FetchFunc requests at most limit items starting at offset and reports the
// total number of items available.
type FetchFunc[T any] func(ctx context.Context, offset, limit int) ([]T, int, error)

// Progress is the cumulative state of one pass over a listing.
type Progress struct {
	Pages   int
	Fetched int
	Total   int
}

// Pager walks a listing page by page. Every call to Pages starts a fresh
// pass, so a Pager can be reused.
type Pager[T any] struct {
	fetch    FetchFunc[T]
	pageSize int
	progress func(Progress)
}

// New creates a Pager over fetch.
func New[T any](fetch FetchFunc[T], opts ...Option) (*Pager[T], error) {
	o := options{pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pageSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageSize, o.pageSize)
	}
	return &Pager[T]{fetch: fetch, pageSize: o.pageSize, progress: o.progress}, nil
}

// Pages yields one batch per request in store order. The pass ends once the
// items fetched reach the total reported by the first page, or a page comes
// back empty. A fetch error is yielded once and ends the pass.
func (p *Pager[T]) Pages(ctx context.Context) iter.Seq2[[]T, error] {
	return p.pass(ctx, new(Progress))
}

// All drains a pass into one slice.
func (p *Pager[T]) All(ctx context.Context) ([]T, Progress, error) {
	var (
		out  []T
		prog Progress
	)
	for items, err := range p.pass(ctx, &prog) {
		if err != nil {
			return out, prog, err
		}
		out = append(out, items...)
	}
	return out, prog, nil
}

func (p *Pager[T]) pass(ctx context.Context, prog *Progress) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		*prog = Progress{}
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			items, total, err := p.fetch(ctx, prog.Fetched, p.pageSize)
			if err != nil {
				yield(nil, fmt.Errorf("fetch page at offset %d: %w", prog.Fetched, err))
				return
			}
			if prog.Pages == 0 {
				prog.Total = total
			}
			if len(items) == 0 {
				return
			}

			prog.Pages++
			prog.Fetched += len(items)
			if p.progress != nil {
				p.progress(*prog)
			}
			if !yield(items, nil) {
				return
			}
			if prog.Fetched >= prog.Total {
				return
			}
		}
	}
}
