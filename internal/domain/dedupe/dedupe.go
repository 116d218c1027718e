// Package dedupe tracks names already seen during a run.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen names so each is handled at most once.
type Deduper interface {
	// SeenAndRecord atomically checks if name was seen and records it if not.
	// Returns the first spelling recorded for the name and true if it was
	// already seen, or name and false if it was newly recorded.
	SeenAndRecord(ctx context.Context, name string) (string, bool)

	// Unrecord removes a name, allowing it to be handled again.
	Unrecord(ctx context.Context, name string)

	Size() int64
}

// inMemoryDeduper implements Deduper with a map keyed by normalized name.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]string // key -> first spelling
	keyFunc func(string) string
	size    atomic.Int64
	hint    int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		keyFunc: func(s string) string { return s },
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]string, d.hint)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, name string) (string, bool) {
	key := d.keyFunc(name)

	d.mu.Lock()
	defer d.mu.Unlock()

	if first, exists := d.seen[key]; exists {
		return first, true
	}
	d.seen[key] = name
	d.size.Add(1)
	return name, false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, name string) {
	key := d.keyFunc(name)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		delete(d.seen, key)
		d.size.Add(-1)
	}
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
