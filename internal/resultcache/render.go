package resultcache

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
)

var tableTemplate = template.Must(template.New("table").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<table border="1">
<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

// RenderHTML writes e as a single HTML table. Excel web queries import the
// first table of the page.
func RenderHTML(w io.Writer, title string, e *Entry) error {
	data := struct {
		Title   string
		Headers []string
		Rows    [][]string
	}{
		Title:   title,
		Headers: e.Headers,
		Rows:    cells(e),
	}
	if err := tableTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("rendering html table: %w", err)
	}
	return nil
}

// WriteCSV writes e as CSV with a header line.
func WriteCSV(w io.Writer, e *Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(e.Headers); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	if err := cw.WriteAll(cells(e)); err != nil {
		return fmt.Errorf("writing csv rows: %w", err)
	}
	return nil
}

// cells projects every row onto the header order; missing columns are empty.
func cells(e *Entry) [][]string {
	out := make([][]string, 0, e.Count)
	for _, row := range e.All() {
		line := make([]string, len(e.Headers))
		for i, h := range e.Headers {
			line[i] = row[h]
		}
		out = append(out, line)
	}
	return out
}
