package values

import (
	"slices"
	"sync"
)

// Outcome is the result of syncing one point pair.
type Outcome struct {
	Source      string
	Destination string
	SourceCount int // values read from the source
	DestCount   int // values found on the destination before writing
	Written     int // values the destination accepted
	Skipped     bool
	Failure     *ValueWriteError
}

// Totals is a point-in-time copy of a Report.
type Totals struct {
	PointsCopied  int
	PointsSkipped int
	ValuesCopied  int
	Failures      []*ValueWriteError
}

// Report accumulates outcomes. Failures are append-only. It is safe for
// concurrent use.
type Report struct {
	mu sync.Mutex
	t  Totals
}

// Add records one outcome.
func (r *Report) Add(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case o.Skipped:
		r.t.PointsSkipped++
	case o.Failure != nil:
		r.t.Failures = append(r.t.Failures, o.Failure)
		r.t.ValuesCopied += o.Written
	default:
		r.t.PointsCopied++
		r.t.ValuesCopied += o.Written
	}
}

// Totals returns a copy of the accumulated counts.
func (r *Report) Totals() Totals {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.t
	t.Failures = slices.Clone(r.t.Failures)
	return t
}
