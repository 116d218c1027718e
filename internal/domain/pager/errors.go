package pager

import (
	"errors"
)

// Sentinel error kinds for this package.
var (
	ErrInvalidPageSize = errors.New("page size must be positive")
)
