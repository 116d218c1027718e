package historian

import (
	"errors"
)

// Sentinel error kinds shared by all store adapters.
var (
	// ErrConnection marks a store that is unreachable or refuses the caller.
	// The engine treats it as fatal and never retries it.
	ErrConnection = errors.New("historian connection failed")

	ErrPointNotFound = errors.New("point not found")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrClosed        = errors.New("store closed")
)

// IsConnection reports whether err is, or wraps, a connection failure.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrClosed)
}
