package repository

import (
	"context"
	"time"

	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/pkg/metrics"
)

// Instrumented records latency and failures of every call to the wrapped
// store under a label such as "source".
type Instrumented struct {
	Historian
	label string
}

// Instrument wraps h.
func Instrument(h Historian, label string) *Instrumented {
	return &Instrumented{Historian: h, label: label}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	metrics.RecordStoreCall(i.label, op, float64(time.Since(start).Microseconds())/1000, err)
}

func (i *Instrumented) FindPoints(ctx context.Context, f string, offset, limit int) (pts []model.Point, total int, err error) {
	defer func(start time.Time) { i.observe("find_points", start, err) }(time.Now())
	return i.Historian.FindPoints(ctx, f, offset, limit)
}

func (i *Instrumented) CreatePoints(ctx context.Context, names []string, attrs map[string]any) (err error) {
	defer func(start time.Time) { i.observe("create_points", start, err) }(time.Now())
	return i.Historian.CreatePoints(ctx, names, attrs)
}

func (i *Instrumented) GetValues(ctx context.Context, point string, attribute *string, r model.TimeRange,
	f *string, newestFirst bool) (vals []model.Value, err error) {
	defer func(start time.Time) { i.observe("get_values", start, err) }(time.Now())
	return i.Historian.GetValues(ctx, point, attribute, r, f, newestFirst)
}

func (i *Instrumented) GetValueCount(ctx context.Context, point string, attribute *string, r model.TimeRange,
	f *string) (n int, err error) {
	defer func(start time.Time) { i.observe("get_value_count", start, err) }(time.Now())
	return i.Historian.GetValueCount(ctx, point, attribute, r, f)
}

func (i *Instrumented) PutValues(ctx context.Context, point string, values []model.Value,
	mode model.UpdateMode) (failed int, err error) {
	defer func(start time.Time) { i.observe("put_values", start, err) }(time.Now())
	return i.Historian.PutValues(ctx, point, values, mode)
}

func (i *Instrumented) InsertValue(ctx context.Context, point string, attribute *string, v model.Value) (err error) {
	defer func(start time.Time) { i.observe("insert_value", start, err) }(time.Now())
	return i.Historian.InsertValue(ctx, point, attribute, v)
}

func (i *Instrumented) DeleteValues(ctx context.Context, point string, attribute *string,
	r model.TimeRange) (n int, err error) {
	defer func(start time.Time) { i.observe("delete_values", start, err) }(time.Now())
	return i.Historian.DeleteValues(ctx, point, attribute, r)
}
