package dedupe

// Option applies a configuration option to the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithKeyFunc normalizes names before comparison, e.g. model.FoldName for
// case-insensitive point names.
func WithKeyFunc(fn func(string) string) Option {
	return func(d *inMemoryDeduper) {
		if fn != nil {
			d.keyFunc = fn
		}
	}
}

// WithCapacity presizes the deduper for n names.
func WithCapacity(n int) Option {
	return func(d *inMemoryDeduper) {
		if n > 0 {
			d.hint = n
		}
	}
}
