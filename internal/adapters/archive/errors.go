package archive

import "errors"

// Sentinel kinds for archive errors.
var (
	ErrNoBucket   = errors.New("archive: bucket is required")
	ErrEmptyName  = errors.New("archive: empty object name")
	ErrNoBackends = errors.New("archive: no backends")
)
