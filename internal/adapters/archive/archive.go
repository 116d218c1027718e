// Package archive stores snappy-compressed run reports on the local disk and,
// optionally, in an S3 bucket.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"

	"github.com/okian/histsync/pkg/logger"
	"github.com/okian/histsync/pkg/metrics"
)

// Ext is appended to archived object names.
const Ext = ".snappy"

// LocalName is the Backend name of LocalBackend.
const LocalName = "local"

const (
	dirPermission  = 0o750
	filePermission = 0o640
)

// Backend stores one archived object and returns where it went.
type Backend interface {
	Name() string
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// Entry is one stored copy of an archived object.
type Entry struct {
	Backend  string
	Location string
}

// Archiver compresses objects and writes them to every backend.
type Archiver struct {
	backends []Backend
	log      logger.Logger
}

// New creates an Archiver over backends, in order.
func New(backends []Backend, opts ...Option) (*Archiver, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	a := &Archiver{backends: backends, log: logger.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Archive compresses data and stores it as name+Ext on each backend. Every
// backend is attempted; the returned error joins the failures.
func (a *Archiver) Archive(ctx context.Context, name string, data []byte) ([]Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	packed := Compress(data)

	var (
		entries []Entry
		errs    []error
	)
	for _, b := range a.backends {
		loc, err := b.Put(ctx, name+Ext, packed)
		if err != nil {
			metrics.RecordArchive(b.Name(), "error")
			a.log.Error(ctx, "archive failed", logger.String("backend", b.Name()), logger.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		metrics.RecordArchive(b.Name(), "ok")
		a.log.Info(ctx, "report archived",
			logger.String("backend", b.Name()),
			logger.String("location", loc),
			logger.Int("bytes", len(packed)))
		entries = append(entries, Entry{Backend: b.Name(), Location: loc})
	}
	return entries, errors.Join(errs...)
}

// Compress encodes data in the snappy block format.
func Compress(data []byte) []byte {
	return snappy.Encode(nil, data)
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return out, nil
}

// LocalBackend writes objects to a directory.
type LocalBackend struct {
	dir string
}

// NewLocalBackend creates a LocalBackend rooted at dir.
func NewLocalBackend(dir string) *LocalBackend {
	return &LocalBackend{dir: dir}
}

// Name implements Backend.
func (b *LocalBackend) Name() string { return LocalName }

// Put implements Backend. The file is written to a temporary name first and
// renamed into place.
func (b *LocalBackend) Put(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(b.dir, dirPermission); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	path := filepath.Join(b.dir, filepath.Base(name))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePermission); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename archive: %w", err)
	}
	return path, nil
}
