package search

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrNilStore = errors.New("search: nil store")
)

// SearchParameterError reports invalid search arguments. It is raised before
// any store call.
type SearchParameterError struct {
	Field  string
	Reason string
}

func (e *SearchParameterError) Error() string {
	return fmt.Sprintf("invalid search parameter %s: %s", e.Field, e.Reason)
}
