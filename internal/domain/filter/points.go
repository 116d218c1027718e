// Package filter parses the point name queries and value filter expressions
// that stores evaluate.
package filter

import (
	"fmt"
	"strings"

	"github.com/okian/histsync/internal/domain/model"
)

// PointQuery is a union of name patterns. A pattern may use * for any run of
// characters and ? for exactly one. Matching ignores letter case.
type PointQuery struct {
	raw      string
	patterns []string // folded
}

// ParsePointQuery parses a comma separated list of patterns. An empty query
// matches every point.
func ParsePointQuery(s string) (*PointQuery, error) {
	q := &PointQuery{raw: s}
	if strings.TrimSpace(s) == "" {
		q.patterns = []string{"*"}
		return q, nil
	}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("%w in %q", ErrEmptyPattern, s)
		}
		q.patterns = append(q.patterns, model.FoldName(p))
	}
	return q, nil
}

// Match reports whether name matches any pattern.
func (q *PointQuery) Match(name string) bool {
	folded := model.FoldName(name)
	for _, p := range q.patterns {
		if wildcard(p, folded) {
			return true
		}
	}
	return false
}

// LikePatterns renders each pattern as a SQL LIKE pattern using \ as the
// escape character.
func (q *PointQuery) LikePatterns() []string {
	out := make([]string, len(q.patterns))
	for i, p := range q.patterns {
		var b strings.Builder
		for _, r := range p {
			switch r {
			case '*':
				b.WriteByte('%')
			case '?':
				b.WriteByte('_')
			case '%', '_', '\\':
				b.WriteByte('\\')
				b.WriteRune(r)
			default:
				b.WriteRune(r)
			}
		}
		out[i] = b.String()
	}
	return out
}

func (q *PointQuery) String() string {
	return q.raw
}

// wildcard matches name against pattern with * and ? semantics, backtracking
// only to the most recent star.
func wildcard(pattern, name string) bool {
	p, n := []rune(pattern), []rune(name)
	pi, ni := 0, 0
	star, mark := -1, 0
	for ni < len(n) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == n[ni]):
			pi++
			ni++
		case pi < len(p) && p[pi] == '*':
			star, mark = pi, ni
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			ni = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
