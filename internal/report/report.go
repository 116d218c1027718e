// Package report describes the result of a histsync run and renders it as
// text, JSON, YAML or an HTML email body.
package report

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/okian/histsync/internal/domain/catalog"
	"github.com/okian/histsync/internal/domain/values"
)

// Outcome is the terminal state of a run.
type Outcome string

// Run outcomes.
const (
	OutcomeRunning   Outcome = "running"
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Failure is a point whose values were not all written.
type Failure struct {
	Point     string `json:"point" yaml:"point"`
	Attempted int    `json:"attempted" yaml:"attempted"`
	Reported  int    `json:"reported" yaml:"reported"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report is the record of one run.
type Report struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	Command     string    `json:"command" yaml:"command"`
	Outcome     Outcome   `json:"outcome" yaml:"outcome"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`
	Source      string    `json:"source" yaml:"source"`
	Destination string    `json:"destination" yaml:"destination"`
	Query       string    `json:"query" yaml:"query"`
	RangeStart  time.Time `json:"range_start" yaml:"range_start"`
	RangeEnd    time.Time `json:"range_end" yaml:"range_end"`
	Filter      string    `json:"filter,omitempty" yaml:"filter,omitempty"`

	SourcePoints      int `json:"source_points" yaml:"source_points"`
	DestinationPoints int `json:"destination_points" yaml:"destination_points"`
	PointsCreated     int `json:"points_created" yaml:"points_created"`

	PointsCopied  int       `json:"points_copied" yaml:"points_copied"`
	PointsSkipped int       `json:"points_skipped" yaml:"points_skipped"`
	ValuesCopied  int       `json:"values_copied" yaml:"values_copied"`
	Failures      []Failure `json:"failures" yaml:"failures"`

	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// New starts a report for a run.
func New(runID, command string, startedAt time.Time) *Report {
	return &Report{
		RunID:     runID,
		Command:   command,
		Outcome:   OutcomeRunning,
		StartedAt: startedAt.UTC(),
		Failures:  []Failure{},
	}
}

// Duration is the wall time of the run, rounded to milliseconds.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)
}

// Succeeded reports whether the run finished without a fatal error. Point
// failures do not make a run fail.
func (r *Report) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// ApplyCatalog copies the catalog summary.
func (r *Report) ApplyCatalog(s catalog.Summary) {
	r.SourcePoints = s.SourcePoints
	r.DestinationPoints = s.DestinationPoints
	r.PointsCreated = s.Created
}

// ApplyValues copies value totals. Failures are ordered by point name so the
// report does not depend on worker scheduling.
func (r *Report) ApplyValues(t values.Totals) {
	r.PointsCopied = t.PointsCopied
	r.PointsSkipped = t.PointsSkipped
	r.ValuesCopied = t.ValuesCopied
	r.Failures = make([]Failure, 0, len(t.Failures))
	for _, f := range t.Failures {
		fail := Failure{Point: f.Point, Attempted: f.Attempted, Reported: f.Reported}
		if f.Err != nil {
			fail.Error = f.Err.Error()
		}
		r.Failures = append(r.Failures, fail)
	}
	slices.SortFunc(r.Failures, func(a, b Failure) int { return cmp.Compare(a.Point, b.Point) })
}

// Finish stamps the end time and the outcome derived from err.
func (r *Report) Finish(at time.Time, err error) {
	r.FinishedAt = at.UTC()
	switch {
	case err == nil:
		r.Outcome = OutcomeSuccess
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		r.Outcome = OutcomeCancelled
		r.Error = err.Error()
	default:
		r.Outcome = OutcomeFailed
		r.Error = err.Error()
	}
}

// Subject is a one line summary suitable for an email subject.
func (r *Report) Subject() string {
	return fmt.Sprintf("histsync %s %s: %d points copied, %d values, %d failed",
		r.Command, r.Outcome, r.PointsCopied, r.ValuesCopied, len(r.Failures))
}
