package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrInvalidRange = errors.New("invalid time range")
)

// Side names one end of a migration.
type Side string

// Migration sides.
const (
	SideSource      Side = "source"
	SideDestination Side = "destination"
)

// AmbiguousCorrespondenceError reports two points on one side whose names
// differ only by letter case, or a name paired twice.
type AmbiguousCorrespondenceError struct {
	Side     Side
	Name     string
	Existing string
}

func (e *AmbiguousCorrespondenceError) Error() string {
	return fmt.Sprintf("ambiguous correspondence: %s point %q collides with %q", e.Side, e.Name, e.Existing)
}
