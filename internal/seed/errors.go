package seed

import "errors"

// Sentinel kinds for seeding errors.
var (
	ErrInvalidConfig = errors.New("seed: invalid config")
)
