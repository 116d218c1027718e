package filter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Op is a comparison operator.
type Op string

// Supported operators.
const (
	OpEq Op = "="
	OpNe Op = "!="
	OpGt Op = ">"
	OpGe Op = ">="
	OpLt Op = "<"
	OpLe Op = "<="
)

// Clause compares the value against a literal.
type Clause struct {
	Op      Op
	Literal string
	Number  float64
	Numeric bool // literal was an unquoted number
}

// ValueFilter is a conjunction of clauses such as
//
//	value >= 10 and value < 20
//	value != 'Bad Input'
type ValueFilter struct {
	raw     string
	clauses []Clause
}

// ParseValueFilter parses expr. The keywords are case-insensitive.
func ParseValueFilter(expr string) (*ValueFilter, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}

	f := &ValueFilter{raw: expr}
	for i := 0; ; {
		if len(toks)-i < 3 {
			return nil, fmt.Errorf("%w: incomplete clause in %q", ErrSyntax, expr)
		}
		if !strings.EqualFold(toks[i].text, "value") || toks[i].quoted {
			return nil, fmt.Errorf("%w: expected 'value', got %q", ErrSyntax, toks[i].text)
		}
		op := Op(toks[i+1].text)
		switch op {
		case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe:
		default:
			return nil, fmt.Errorf("%w: unknown operator %q", ErrSyntax, toks[i+1].text)
		}
		lit := toks[i+2]
		c := Clause{Op: op, Literal: lit.text}
		if !lit.quoted {
			n, err := strconv.ParseFloat(lit.text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is neither a number nor quoted", ErrSyntax, lit.text)
			}
			c.Number, c.Numeric = n, true
		}
		f.clauses = append(f.clauses, c)

		i += 3
		if i == len(toks) {
			return f, nil
		}
		if !strings.EqualFold(toks[i].text, "and") || toks[i].quoted {
			return nil, fmt.Errorf("%w: expected 'and', got %q", ErrSyntax, toks[i].text)
		}
		i++
	}
}

// Clauses returns the parsed clauses.
func (f *ValueFilter) Clauses() []Clause {
	return append([]Clause(nil), f.clauses...)
}

// Match reports whether v satisfies every clause. Numeric literals compare
// numerically against numeric values; everything else compares the textual
// form of v.
func (f *ValueFilter) Match(v any) bool {
	for _, c := range f.clauses {
		if !c.match(v) {
			return false
		}
	}
	return true
}

func (f *ValueFilter) String() string {
	return f.raw
}

func (c Clause) match(v any) bool {
	if c.Numeric {
		if n, ok := AsFloat(v); ok {
			return compare(cmpFloat(n, c.Number), c.Op)
		}
	}
	return compare(strings.Compare(fmt.Sprint(v), c.Literal), c.Op)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compare(cmp int, op Op) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	}
	return false
}

// AsFloat converts Go numeric kinds to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

type token struct {
	text   string
	quoted bool
}

func tokenize(s string) ([]token, error) {
	var toks []token
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'' || r == '"':
			j := i + 1
			for j < len(rs) && rs[j] != r {
				j++
			}
			if j == len(rs) {
				return nil, fmt.Errorf("%w: unterminated string in %q", ErrSyntax, s)
			}
			toks = append(toks, token{text: string(rs[i+1 : j]), quoted: true})
			i = j + 1
		case strings.ContainsRune("=!<>", r):
			j := i + 1
			if j < len(rs) && rs[j] == '=' {
				j++
			}
			toks = append(toks, token{text: string(rs[i:j])})
			i = j
		default:
			j := i
			for j < len(rs) && !unicode.IsSpace(rs[j]) && !strings.ContainsRune("=!<>'\"", rs[j]) {
				j++
			}
			toks = append(toks, token{text: string(rs[i:j])})
			i = j
		}
	}
	return toks, nil
}
