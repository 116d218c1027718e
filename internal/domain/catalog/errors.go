package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds for this package.
var (
	ErrNilStore = errors.New("catalog: nil store")
)

// CatalogMismatchError reports that the destination catalog does not mirror
// the source after reconciliation.
type CatalogMismatchError struct {
	Expected int
	Actual   int
	Missing  []string // source points without a destination counterpart, if known
}

func (e *CatalogMismatchError) Error() string {
	msg := fmt.Sprintf("catalog mismatch: expected %d destination points, found %d", e.Expected, e.Actual)
	if len(e.Missing) > 0 {
		const shown = 10
		names := e.Missing
		if len(names) > shown {
			names = names[:shown]
		}
		msg += fmt.Sprintf("; missing %d: %s", len(e.Missing), strings.Join(names, ", "))
		if len(e.Missing) > shown {
			msg += ", ..."
		}
	}
	return msg
}
