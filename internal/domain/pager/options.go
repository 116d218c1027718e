package pager

type options struct {
	pageSize int
	progress func(Progress)
}

// Option configures a Pager.
type Option func(*options)

// WithPageSize sets the maximum number of items per request.
func WithPageSize(n int) Option {
	return func(o *options) {
		o.pageSize = n
	}
}

// WithProgress registers fn to observe progress after every non-empty page.
func WithProgress(fn func(Progress)) Option {
	return func(o *options) {
		o.progress = fn
	}
}
