package filter

import (
	"errors"
)

// Sentinel error kinds for this package.
var (
	ErrEmptyPattern = errors.New("empty point pattern")
	ErrSyntax       = errors.New("filter syntax error")
)
