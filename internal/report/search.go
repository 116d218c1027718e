package report

import (
	"fmt"
	"io"
	"time"

	"github.com/okian/histsync/internal/domain/search"
)

// SearchSummary is the rendered shape of a backward search.
type SearchSummary struct {
	Point      string   `json:"point" yaml:"point"`
	Found      bool     `json:"found" yaml:"found"`
	Timestamp  string   `json:"timestamp" yaml:"timestamp"`
	Value      any      `json:"value" yaml:"value"`
	Attempts   int      `json:"attempts" yaml:"attempts"`
	Expansions int      `json:"expansions" yaml:"expansions"`
	Windows    []string `json:"windows" yaml:"windows"`
}

// Summarize converts a search result for rendering.
func Summarize(r search.Result) SearchSummary {
	s := SearchSummary{
		Point:      r.Point,
		Found:      r.Found,
		Timestamp:  r.TimestampText(),
		Value:      r.Value,
		Attempts:   r.Attempts(),
		Expansions: r.Expansions(),
		Windows:    make([]string, 0, len(r.Windows)),
	}
	for _, w := range r.Windows {
		s.Windows = append(s.Windows, w.Start.UTC().Format(time.RFC3339)+" .. "+w.End.UTC().Format(time.RFC3339))
	}
	return s
}

// RenderSearch writes a search result to w. HTML is not supported.
func RenderSearch(w io.Writer, r search.Result, f Format) error {
	s := Summarize(r)
	switch f {
	case FormatText, "":
		value := "-"
		if s.Found {
			value = fmt.Sprint(s.Value)
		}
		_, err := fmt.Fprintf(w, "%s: %s value=%s after %d windows\n", s.Point, s.Timestamp, value, s.Attempts)
		if err != nil {
			return fmt.Errorf("write search result: %w", err)
		}
		return nil
	case FormatJSON:
		return renderJSON(w, s)
	case FormatYAML:
		return renderYAML(w, s)
	default:
		return fmt.Errorf("%w: %q for search results", ErrUnknownFormat, f)
	}
}
