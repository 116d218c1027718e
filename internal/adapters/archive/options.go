package archive

import (
	"github.com/okian/histsync/pkg/logger"
	"github.com/okian/histsync/pkg/retry"
)

// Option configures an Archiver.
type Option func(*Archiver)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Archiver) {
		if l != nil {
			a.log = l
		}
	}
}

// S3Option configures an S3Backend.
type S3Option func(*S3Backend)

// WithRetryer replaces the upload retry policy.
func WithRetryer(r *retry.Retryer) S3Option {
	return func(b *S3Backend) {
		if r != nil {
			b.retryer = r
		}
	}
}

// WithClient injects an S3 client, typically a test double.
func WithClient(c PutObjectAPI) S3Option {
	return func(b *S3Backend) {
		if c != nil {
			b.client = c
		}
	}
}
