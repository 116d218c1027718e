// Package model contains domain models passed between layers.
package model

import (
	"golang.org/x/text/cases"
)

// Point is the engine's read-only projection of a historian point.
type Point struct {
	Name       string         // unique per store, compared case-insensitively
	Attributes map[string]any // set at creation, immutable afterwards
}

// FoldName returns the case-folded form of a point name. Two names refer to
// the same point exactly when their folded forms are equal.
func FoldName(name string) string {
	// A Caser holds state, so one is built per call.
	return cases.Fold().String(name)
}

// MigrationQuery selects source points and templates new destination points.
type MigrationQuery struct {
	Filter     string         // point name filter, see package filter
	Attributes map[string]any // applied to every created destination point
}
