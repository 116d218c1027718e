package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/histsync/internal/domain/filter"
	"github.com/okian/histsync/internal/domain/historian"
	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/pkg/logger"
)

// Treap-based, in-memory historian.
//
// Points are ordered by folded name in an order-statistic treap, so a page
// at any offset of the full catalog is found in O(log n). Values are kept
// per attribute stream in timestamp order.

const snapshotPermission = 0o600

type storedValue struct {
	TS   time.Time `cbor:"t"`
	Data []byte    `cbor:"v"`
	UOM  string    `cbor:"u,omitempty"`
}

type memPoint struct {
	Name    string                   `cbor:"n"`
	Attrs   []byte                   `cbor:"a"`
	Streams map[string][]storedValue `cbor:"s"`
}

// treap node
type node struct {
	key   string // folded name
	point *memPoint
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, key string, p *memPoint) *node {
	if n == nil {
		return &node{key: key, point: p, prio: rand.Uint64(), size: 1} //nolint:gosec // treap balance only
	}
	switch {
	case key < n.key:
		n.left = insert(n.left, key, p)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	case key > n.key:
		n.right = insert(n.right, key, p)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	default:
		return n
	}
	fix(n)
	return n
}

func find(n *node, key string) *memPoint {
	for n != nil {
		switch {
		case key < n.key:
			n = n.left
		case key > n.key:
			n = n.right
		default:
			return n.point
		}
	}
	return nil
}

// collectRange appends up to limit points in order starting at rank offset.
func collectRange(n *node, offset, limit int, out *[]*memPoint) {
	if n == nil || len(*out) >= limit {
		return
	}
	leftSize := nsize(n.left)
	if offset < leftSize {
		collectRange(n.left, offset, limit, out)
	}
	if len(*out) < limit && offset <= leftSize {
		*out = append(*out, n.point)
	}
	if len(*out) < limit {
		collectRange(n.right, max(offset-leftSize-1, 0), limit, out)
	}
}

// walk visits points in order until fn returns false.
func walk(n *node, fn func(*memPoint) bool) bool {
	if n == nil {
		return true
	}
	return walk(n.left, fn) && fn(n.point) && walk(n.right, fn)
}

// MemoryStore is an in-memory historian. When created with a snapshot path
// it loads the snapshot on open and writes it back on Close.
type MemoryStore struct {
	mu       sync.RWMutex
	root     *node
	codec    codec
	snapshot string
	closed   bool
	settings settings
}

var _ Historian = (*MemoryStore)(nil)

// NewMemoryStore creates a memory store. snapshotPath may be empty.
func NewMemoryStore(snapshotPath string, opts ...Option) (*MemoryStore, error) {
	c, err := newCodec()
	if err != nil {
		return nil, err
	}
	s := &MemoryStore{codec: c, snapshot: snapshotPath, settings: defaultSettings()}
	for _, opt := range opts {
		opt(&s.settings)
	}
	if snapshotPath != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MemoryStore) load() error {
	data, err := os.ReadFile(s.snapshot)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read snapshot: %w", historian.ErrConnection, err)
	}
	var points []*memPoint
	if err := s.codec.dec.Unmarshal(data, &points); err != nil {
		return fmt.Errorf("%w: decode snapshot %s: %w", historian.ErrConnection, s.snapshot, err)
	}
	for _, p := range points {
		if p.Streams == nil {
			p.Streams = map[string][]storedValue{}
		}
		s.root = insert(s.root, model.FoldName(p.Name), p)
	}
	return nil
}

// Close writes the snapshot, if configured. Later calls fail with
// historian.ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.snapshot == "" {
		return nil
	}
	points := make([]*memPoint, 0, nsize(s.root))
	walk(s.root, func(p *memPoint) bool {
		points = append(points, p)
		return true
	})
	data, err := s.codec.enc.Marshal(points)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(s.snapshot, data, snapshotPermission); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// FindPoints implements historian.Store.
func (s *MemoryStore) FindPoints(ctx context.Context, f string, offset, limit int) ([]model.Point, int, error) {
	q, err := filter.ParsePointQuery(f)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", historian.ErrInvalidFilter, err)
	}
	if offset < 0 || limit <= 0 {
		return nil, 0, fmt.Errorf("%w: offset %d limit %d", historian.ErrInvalidFilter, offset, limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, 0, historian.ErrClosed
	}

	var (
		page  []*memPoint
		total int
	)
	if q.String() == "" || q.String() == "*" {
		total = nsize(s.root)
		collectRange(s.root, offset, limit, &page)
	} else {
		walk(s.root, func(p *memPoint) bool {
			if q.Match(p.Name) {
				if total >= offset && len(page) < limit {
					page = append(page, p)
				}
				total++
			}
			return true
		})
	}

	out := make([]model.Point, 0, len(page))
	for _, p := range page {
		attrs, err := s.codec.decodeAttrs(p.Attrs)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, model.Point{Name: p.Name, Attributes: attrs})
	}
	return out, total, nil
}

// CreatePoints implements historian.Store.
func (s *MemoryStore) CreatePoints(ctx context.Context, names []string, attrs map[string]any) error {
	enc, err := s.codec.encodeAttrs(attrs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return historian.ErrClosed
	}
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("%w: empty point name", historian.ErrInvalidFilter)
		}
		key := model.FoldName(n)
		if find(s.root, key) != nil {
			continue
		}
		s.root = insert(s.root, key, &memPoint{Name: n, Attrs: enc, Streams: map[string][]storedValue{}})
	}
	return nil
}

// GetValues implements historian.Store.
func (s *MemoryStore) GetValues(ctx context.Context, point string, attribute *string, r model.TimeRange,
	f *string, newestFirst bool) ([]model.Value, error) {
	vf, err := parseValueFilter(f)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	stream, err := s.stream(point, attribute)
	if err != nil {
		return nil, err
	}

	lo, hi := bounds(stream, r)
	out := make([]model.Value, 0, hi-lo)
	for _, sv := range stream[lo:hi] {
		v, err := s.codec.decodeValue(sv.Data)
		if err != nil {
			return nil, err
		}
		if vf != nil && !vf.Match(v) {
			continue
		}
		out = append(out, model.Value{Timestamp: sv.TS, Value: v, UOM: sv.UOM})
	}
	if newestFirst {
		slices.Reverse(out)
	}
	return out, nil
}

// GetValueCount implements historian.Store.
func (s *MemoryStore) GetValueCount(ctx context.Context, point string, attribute *string, r model.TimeRange,
	f *string) (int, error) {
	if f == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		stream, err := s.stream(point, attribute)
		if err != nil {
			return 0, err
		}
		lo, hi := bounds(stream, r)
		return hi - lo, nil
	}
	vals, err := s.GetValues(ctx, point, attribute, r, f, false)
	return len(vals), err
}

// PutValues implements historian.Store. Values of unsupported kinds, with a
// zero timestamp, or repeating an earlier timestamp of the same call once
// truncated to model.Precision are rejected and counted.
func (s *MemoryStore) PutValues(ctx context.Context, point string, values []model.Value, mode model.UpdateMode) (int, error) {
	if mode != model.Replace {
		return 0, fmt.Errorf("unsupported update mode %s", mode)
	}
	return s.put(ctx, point, "", values)
}

func (s *MemoryStore) put(ctx context.Context, point, attribute string, values []model.Value) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, historian.ErrClosed
	}
	p := find(s.root, model.FoldName(point))
	if p == nil {
		return 0, fmt.Errorf("%w: %s", historian.ErrPointNotFound, point)
	}

	failed := 0
	seen := make(map[int64]struct{}, len(values))
	for _, v := range values {
		data, err := s.codec.encodeValue(v.Value)
		if err != nil || v.Timestamp.IsZero() {
			failed++
			continue
		}
		ts := v.Timestamp.UTC().Truncate(model.Precision)
		if _, dup := seen[ts.UnixMicro()]; dup {
			failed++
			continue
		}
		seen[ts.UnixMicro()] = struct{}{}
		p.Streams[attribute] = upsert(p.Streams[attribute], storedValue{TS: ts, Data: data, UOM: v.UOM})
	}
	if failed > 0 {
		s.settings.log.Debug(ctx, "values rejected",
			logger.String("point", point),
			logger.String("attribute", attribute),
			logger.Int("failed", failed),
			logger.Int("attempted", len(values)))
	}
	return failed, nil
}

// InsertValue implements historian.ValueEditor.
func (s *MemoryStore) InsertValue(ctx context.Context, point string, attribute *string, v model.Value) error {
	failed, err := s.put(ctx, point, attr(attribute), []model.Value{v})
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, v.Value)
	}
	return nil
}

// DeleteValues implements historian.ValueEditor.
func (s *MemoryStore) DeleteValues(ctx context.Context, point string, attribute *string, r model.TimeRange) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, historian.ErrClosed
	}
	p := find(s.root, model.FoldName(point))
	if p == nil {
		return 0, fmt.Errorf("%w: %s", historian.ErrPointNotFound, point)
	}
	a := attr(attribute)
	stream := p.Streams[a]
	lo, hi := bounds(stream, r)
	p.Streams[a] = slices.Delete(stream, lo, hi)
	return hi - lo, nil
}

// stream returns one attribute stream; the caller holds the lock.
func (s *MemoryStore) stream(point string, attribute *string) ([]storedValue, error) {
	if s.closed {
		return nil, historian.ErrClosed
	}
	p := find(s.root, model.FoldName(point))
	if p == nil {
		return nil, fmt.Errorf("%w: %s", historian.ErrPointNotFound, point)
	}
	return p.Streams[attr(attribute)], nil
}

// bounds returns the index span of stream inside r, both ends included.
func bounds(stream []storedValue, r model.TimeRange) (int, int) {
	lo := sort.Search(len(stream), func(i int) bool { return !stream[i].TS.Before(r.Start) })
	hi := sort.Search(len(stream), func(i int) bool { return stream[i].TS.After(r.End) })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func upsert(stream []storedValue, v storedValue) []storedValue {
	i := sort.Search(len(stream), func(i int) bool { return !stream[i].TS.Before(v.TS) })
	if i < len(stream) && stream[i].TS.Equal(v.TS) {
		stream[i] = v
		return stream
	}
	return slices.Insert(stream, i, v)
}

func parseValueFilter(f *string) (*filter.ValueFilter, error) {
	if f == nil {
		return nil, nil
	}
	vf, err := filter.ParseValueFilter(*f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", historian.ErrInvalidFilter, err)
	}
	return vf, nil
}
