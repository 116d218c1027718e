package model

import (
	"fmt"
	"time"
)

// Precision is the timestamp resolution stores keep. Finer timestamps are
// truncated on write, so two values inside one Precision step collide.
const Precision = time.Microsecond

// Value is one dated reading of a point.
type Value struct {
	Timestamp time.Time
	Value     any
	UOM       string
}

// String renders the value the way equality checks compare it.
func (v Value) String() string {
	return fmt.Sprint(v.Value)
}

// TimeRange is a UTC time span. Reads include values exactly at Start and End.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange builds a validated range in UTC.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	r := TimeRange{Start: start.UTC(), End: end.UTC()}
	return r, r.Validate()
}

// Validate checks start <= end.
func (r TimeRange) Validate() error {
	if r.Start.After(r.End) {
		return fmt.Errorf("%w: start %s after end %s", ErrInvalidRange,
			r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether t lies inside the range, bounds included.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Duration returns End - Start.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

func (r TimeRange) String() string {
	return r.Start.Format(time.RFC3339) + " .. " + r.End.Format(time.RFC3339)
}

// UpdateMode selects how written values interact with existing ones.
type UpdateMode int

const (
	// Replace overwrites a value stored at the same timestamp.
	Replace UpdateMode = iota
)

func (m UpdateMode) String() string {
	switch m {
	case Replace:
		return "replace"
	default:
		return fmt.Sprintf("UpdateMode(%d)", int(m))
	}
}
