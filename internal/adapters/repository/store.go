// Package repository implements historian stores: an in-memory treap store
// and a SQLite store.
package repository

import (
	"context"
	"fmt"
	"io"

	"github.com/okian/histsync/internal/domain/historian"
)

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Historian is a store that accepts manual corrections and must be closed.
type Historian interface {
	historian.Store
	historian.ValueEditor
	io.Closer
}

// Open opens a store by driver name. For the memory driver dsn is an optional
// snapshot file; for sqlite it is the database path.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Historian, error) {
	switch driver {
	case DriverSQLite:
		return NewSQLiteStore(ctx, dsn, opts...)
	case DriverMemory:
		return NewMemoryStore(dsn, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
