// Package historian defines the port every time-series store adapter implements.
package historian

import (
	"context"

	"github.com/okian/histsync/internal/domain/model"
)

// Store is one historian endpoint.
//
// Point names are matched case-insensitively. Range reads include values
// exactly at the range bounds. A nil attribute addresses the point's primary
// value stream and a nil filter selects every value.
type Store interface {
	// FindPoints returns up to limit points matching filter, starting at
	// offset, in ascending name order, and the total number of matches.
	FindPoints(ctx context.Context, filter string, offset, limit int) ([]model.Point, int, error)

	// CreatePoints creates every named point with attrs. Existing names are
	// left untouched.
	CreatePoints(ctx context.Context, names []string, attrs map[string]any) error

	// GetValues returns the values of point in r, oldest first unless
	// newestFirst is set.
	GetValues(ctx context.Context, point string, attribute *string, r model.TimeRange,
		filter *string, newestFirst bool) ([]model.Value, error)

	// GetValueCount returns the number of values GetValues would return.
	GetValueCount(ctx context.Context, point string, attribute *string, r model.TimeRange,
		filter *string) (int, error)

	// PutValues writes values to point and returns how many were rejected.
	PutValues(ctx context.Context, point string, values []model.Value, mode model.UpdateMode) (int, error)
}

// ValueEditor is implemented by stores that accept manual corrections.
// Unlike PutValues it can address any attribute stream; a nil attribute
// addresses the primary stream.
type ValueEditor interface {
	// InsertValue writes a single value to one stream of point.
	InsertValue(ctx context.Context, point string, attribute *string, v model.Value) error

	// DeleteValues removes the values of one stream of point in r and
	// returns how many were removed.
	DeleteValues(ctx context.Context, point string, attribute *string, r model.TimeRange) (int, error)
}
