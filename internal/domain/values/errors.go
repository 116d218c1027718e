package values

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrNilStore = errors.New("values: nil store")
)

// ValueWriteError reports a point whose values were not all accepted by the
// destination. It is recorded in the report and the run continues.
type ValueWriteError struct {
	Point     string
	Attempted int
	Reported  int   // values the destination reported as failed
	Err       error // transport or store error, if the write call itself failed
}

func (e *ValueWriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("write values to %s: %d attempted: %v", e.Point, e.Attempted, e.Err)
	}
	return fmt.Sprintf("write values to %s: %d of %d rejected", e.Point, e.Reported, e.Attempted)
}

func (e *ValueWriteError) Unwrap() error {
	return e.Err
}
