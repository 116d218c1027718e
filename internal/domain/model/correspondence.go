package model

// Pair links a source point to its destination counterpart.
type Pair struct {
	Source      string
	Destination string
}

// CorrespondenceMap maps source point names to destination point names.
// Entries are only ever added; insertion order is preserved.
type CorrespondenceMap struct {
	pairs  []Pair
	bySrc  map[string]int
	byDest map[string]int
}

// NewCorrespondenceMap returns an empty map sized for n entries.
func NewCorrespondenceMap(n int) *CorrespondenceMap {
	return &CorrespondenceMap{
		pairs:  make([]Pair, 0, n),
		bySrc:  make(map[string]int, n),
		byDest: make(map[string]int, n),
	}
}

// Add records src -> dst. Reusing a source or destination name, in any
// letter case, returns an *AmbiguousCorrespondenceError.
func (m *CorrespondenceMap) Add(src, dst string) error {
	fs, fd := FoldName(src), FoldName(dst)
	if i, ok := m.bySrc[fs]; ok {
		return &AmbiguousCorrespondenceError{Side: SideSource, Name: src, Existing: m.pairs[i].Source}
	}
	if i, ok := m.byDest[fd]; ok {
		return &AmbiguousCorrespondenceError{Side: SideDestination, Name: dst, Existing: m.pairs[i].Destination}
	}
	m.bySrc[fs] = len(m.pairs)
	m.byDest[fd] = len(m.pairs)
	m.pairs = append(m.pairs, Pair{Source: src, Destination: dst})
	return nil
}

// Lookup returns the destination paired with src.
func (m *CorrespondenceMap) Lookup(src string) (string, bool) {
	i, ok := m.bySrc[FoldName(src)]
	if !ok {
		return "", false
	}
	return m.pairs[i].Destination, true
}

// Pairs returns a copy of the entries in insertion order.
func (m *CorrespondenceMap) Pairs() []Pair {
	out := make([]Pair, len(m.pairs))
	copy(out, m.pairs)
	return out
}

// Len returns the number of entries.
func (m *CorrespondenceMap) Len() int {
	return len(m.pairs)
}
