package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format selects a renderer.
type Format string

// Supported formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHTML Format = "html"
)

// ParseFormat accepts a format name, case-insensitively. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Render writes r to w in format f.
func Render(w io.Writer, r *Report, f Format) error {
	switch f {
	case FormatText, "":
		return renderText(w, r)
	case FormatJSON:
		return renderJSON(w, r)
	case FormatYAML:
		return renderYAML(w, r)
	case FormatHTML:
		return renderHTML(w, r)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// JSON returns the indented JSON encoding of r.
func JSON(r *Report) ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(b, '\n'), nil
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func renderYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func renderText(w io.Writer, r *Report) error {
	var b strings.Builder
	line := func(k string, v any) {
		fmt.Fprintf(&b, "  %-20s %v\n", k+":", v)
	}

	fmt.Fprintf(&b, "histsync %s %s: %s\n", r.Command, r.RunID, r.Outcome)
	line("started", stamp(r.StartedAt))
	line("finished", fmt.Sprintf("%s (%s)", stamp(r.FinishedAt), r.Duration()))
	line("source", r.Source)
	line("destination", r.Destination)
	line("query", r.Query)
	if !r.RangeStart.IsZero() || !r.RangeEnd.IsZero() {
		line("range", stamp(r.RangeStart)+" .. "+stamp(r.RangeEnd))
	}
	if r.Filter != "" {
		line("filter", r.Filter)
	}

	b.WriteString("\ncatalog\n")
	line("source points", r.SourcePoints)
	line("destination points", r.DestinationPoints)
	line("points created", r.PointsCreated)

	b.WriteString("\nvalues\n")
	line("points copied", r.PointsCopied)
	line("points skipped", r.PointsSkipped)
	line("values copied", r.ValuesCopied)
	line("failed points", len(r.Failures))

	if len(r.Failures) > 0 {
		b.WriteString("\nfailures\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  %s: %d of %d values rejected", f.Point, f.Reported, f.Attempted)
			if f.Error != "" {
				b.WriteString(": " + f.Error)
			}
			b.WriteString("\n")
		}
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "\nerror: %s\n", r.Error)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
