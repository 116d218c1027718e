package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrServe = errors.New("side server failed")
)
