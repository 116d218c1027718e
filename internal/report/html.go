package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
)

//go:embed templates/report.html
var templateFS embed.FS

var htmlTemplate = template.Must(template.New("report.html").
	Funcs(template.FuncMap{"stamp": stamp}).
	ParseFS(templateFS, "templates/report.html"))

func renderHTML(w io.Writer, r *Report) error {
	if err := htmlTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

// HTML renders r as an email body.
func HTML(r *Report) (string, error) {
	var b strings.Builder
	if err := renderHTML(&b, r); err != nil {
		return "", err
	}
	return b.String(), nil
}
