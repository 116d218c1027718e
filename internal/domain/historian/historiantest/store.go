// Package historiantest provides an in-memory historian.Store for tests,
// with call recording and failure injection.
package historiantest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/okian/histsync/internal/domain/filter"
	"github.com/okian/histsync/internal/domain/historian"
	"github.com/okian/histsync/internal/domain/model"
)

// Operation names used in Calls and Errors.
const (
	OpFindPoints    = "FindPoints"
	OpCreatePoints  = "CreatePoints"
	OpGetValues     = "GetValues"
	OpGetValueCount = "GetValueCount"
	OpPutValues     = "PutValues"
	OpInsertValue   = "InsertValue"
	OpDeleteValues  = "DeleteValues"
)

// Call is one recorded store call.
type Call struct {
	Op    string
	Point string
	Range model.TimeRange
	Count int // names created or values written
}

type point struct {
	name    string
	attrs   map[string]any
	streams map[string][]model.Value // attribute -> values ordered by time
}

// Store is a fake historian.Store. The exported fields may be set before use
// and read after; they are not safe to modify concurrently with calls.
type Store struct {
	mu     sync.Mutex
	points map[string]*point
	calls  []Call

	// Errors makes an operation fail with the given error.
	Errors map[string]error
	// Reject makes PutValues drop and report the last n values for a point.
	Reject map[string]int
	// Before runs at the start of every call, outside the lock.
	Before func(op string)
}

var _ historian.Store = (*Store)(nil)
var _ historian.ValueEditor = (*Store)(nil)

// NewStore returns a store holding the named points with no values.
func NewStore(names ...string) *Store {
	s := &Store{
		points: map[string]*point{},
		Errors: map[string]error{},
		Reject: map[string]int{},
	}
	for _, n := range names {
		s.AddPoint(n, nil)
	}
	return s
}

// AddPoint adds a point directly.
func (s *Store) AddPoint(name string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[model.FoldName(name)] = &point{name: name, attrs: attrs, streams: map[string][]model.Value{}}
}

// AddValues stores values on the primary stream of an existing point.
func (s *Store) AddValues(name string, values ...model.Value) {
	s.AddAttributeValues(name, "", values...)
}

// AddAttributeValues stores values on a named attribute stream.
func (s *Store) AddAttributeValues(name, attribute string, values ...model.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.points[model.FoldName(name)]
	for _, v := range values {
		p.streams[attribute] = upsert(p.streams[attribute], v)
	}
}

// Values returns the primary stream of a point.
func (s *Store) Values(name string) []model.Value {
	return s.AttributeValues(name, "")
}

// AttributeValues returns one attribute stream of a point.
func (s *Store) AttributeValues(name, attribute string) []model.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[model.FoldName(name)]
	if !ok {
		return nil
	}
	return slices.Clone(p.streams[attribute])
}

// Attributes returns the creation attributes of a point.
func (s *Store) Attributes(name string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.points[model.FoldName(name)]; ok {
		return p.attrs
	}
	return nil
}

// Names returns all point names in ascending folded order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedNames(func(string) bool { return true })
}

// Calls returns the recorded calls.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallsTo returns the recorded calls of one operation.
func (s *Store) CallsTo(op string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Store) enter(op string, c Call) error {
	if s.Before != nil {
		s.Before(op)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Op = op
	s.calls = append(s.calls, c)
	return s.Errors[op]
}

func (s *Store) FindPoints(ctx context.Context, f string, offset, limit int) ([]model.Point, int, error) {
	if err := s.enter(OpFindPoints, Call{}); err != nil {
		return nil, 0, err
	}
	q, err := filter.ParsePointQuery(f)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", historian.ErrInvalidFilter, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	names := s.sortedNames(q.Match)
	total := len(names)
	if offset >= total {
		return nil, total, nil
	}
	names = names[offset:min(offset+limit, total)]
	out := make([]model.Point, len(names))
	for i, n := range names {
		p := s.points[model.FoldName(n)]
		out[i] = model.Point{Name: p.name, Attributes: p.attrs}
	}
	return out, total, nil
}

func (s *Store) CreatePoints(ctx context.Context, names []string, attrs map[string]any) error {
	if err := s.enter(OpCreatePoints, Call{Count: len(names)}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		k := model.FoldName(n)
		if _, ok := s.points[k]; !ok {
			s.points[k] = &point{name: n, attrs: attrs, streams: map[string][]model.Value{}}
		}
	}
	return nil
}

func (s *Store) GetValues(ctx context.Context, name string, attribute *string, r model.TimeRange,
	f *string, newestFirst bool) ([]model.Value, error) {
	if err := s.enter(OpGetValues, Call{Point: name, Range: r}); err != nil {
		return nil, err
	}
	return s.read(name, attribute, r, f, newestFirst)
}

func (s *Store) GetValueCount(ctx context.Context, name string, attribute *string, r model.TimeRange,
	f *string) (int, error) {
	if err := s.enter(OpGetValueCount, Call{Point: name, Range: r}); err != nil {
		return 0, err
	}
	vals, err := s.read(name, attribute, r, f, false)
	return len(vals), err
}

func (s *Store) PutValues(ctx context.Context, name string, values []model.Value, _ model.UpdateMode) (int, error) {
	if err := s.enter(OpPutValues, Call{Point: name, Count: len(values)}); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[model.FoldName(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", historian.ErrPointNotFound, name)
	}
	rejected := min(s.Reject[model.FoldName(name)], len(values))
	for _, v := range values[:len(values)-rejected] {
		p.streams[""] = upsert(p.streams[""], v)
	}
	return rejected, nil
}

func (s *Store) InsertValue(ctx context.Context, name string, attribute *string, v model.Value) error {
	if err := s.enter(OpInsertValue, Call{Point: name, Count: 1}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[model.FoldName(name)]
	if !ok {
		return fmt.Errorf("%w: %s", historian.ErrPointNotFound, name)
	}
	a := stream(attribute)
	p.streams[a] = upsert(p.streams[a], v)
	return nil
}

func (s *Store) DeleteValues(ctx context.Context, name string, attribute *string, r model.TimeRange) (int, error) {
	if err := s.enter(OpDeleteValues, Call{Point: name, Range: r}); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[model.FoldName(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", historian.ErrPointNotFound, name)
	}
	a := stream(attribute)
	kept := p.streams[a][:0]
	removed := 0
	for _, v := range p.streams[a] {
		if r.Contains(v.Timestamp) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	p.streams[a] = kept
	return removed, nil
}

func stream(attribute *string) string {
	if attribute == nil {
		return ""
	}
	return *attribute
}

func (s *Store) read(name string, attribute *string, r model.TimeRange, f *string, newestFirst bool) ([]model.Value, error) {
	var vf *filter.ValueFilter
	if f != nil {
		parsed, err := filter.ParseValueFilter(*f)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", historian.ErrInvalidFilter, err)
		}
		vf = parsed
	}
	attr := stream(attribute)

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[model.FoldName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", historian.ErrPointNotFound, name)
	}
	var out []model.Value
	for _, v := range p.streams[attr] {
		if r.Contains(v.Timestamp) && (vf == nil || vf.Match(v.Value)) {
			out = append(out, v)
		}
	}
	if newestFirst {
		slices.Reverse(out)
	}
	return out, nil
}

func (s *Store) sortedNames(keep func(string) bool) []string {
	var names []string
	for _, p := range s.points {
		if keep(p.name) {
			names = append(names, p.name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return model.FoldName(names[i]) < model.FoldName(names[j]) })
	return names
}

func upsert(vals []model.Value, v model.Value) []model.Value {
	i := sort.Search(len(vals), func(i int) bool { return !vals[i].Timestamp.Before(v.Timestamp) })
	if i < len(vals) && vals[i].Timestamp.Equal(v.Timestamp) {
		vals[i] = v
		return vals
	}
	return slices.Insert(vals, i, v)
}
