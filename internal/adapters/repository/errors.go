package repository

import "errors"

// Sentinel kinds for store adapter errors.
var (
	ErrUnknownDriver    = errors.New("unknown store driver")
	ErrUnsupportedValue = errors.New("unsupported value kind")
)
