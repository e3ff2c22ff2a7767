package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// indexPage is the data behind index.html. Artifact links are relative:
// the index is stored next to the files it lists.
type indexPage struct {
	RunID       string
	Lineage     string
	GeneratedAt time.Time
	Sections    []indexSection
	Workbook    string
	Metrics     string
}

type indexSection struct {
	ID      string
	Title   string
	Caption string
	Figure  string
	Empty   bool
	Rows    int
	Genes   []geneRow
	Files   []string
}

type geneRow struct {
	Symbol   string
	Category string
	Name     string
	Location string
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{if .Lineage}}{{.Lineage}} {{end}}m6A regulator report</title>
<style>body{font-family:sans-serif;max-width:70em;margin:auto}figure{margin:0 0 2em}img{max-width:100%}td,th{padding:.2em .6em;text-align:left}</style>
</head><body>
<h1>{{if .Lineage}}{{.Lineage}} {{end}}m6A regulator report</h1>
<p>Run {{.RunID}}, generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}.{{if .Workbook}} <a href="{{.Workbook}}">Figure data (xlsx)</a>.{{end}}{{if .Metrics}} <a href="{{.Metrics}}">Run metrics</a>.{{end}}</p>
<nav><ol>{{range .Sections}}<li><a href="#{{.ID}}">{{.Title}}</a></li>{{end}}</ol></nav>
{{range .Sections}}<section id="{{.ID}}">
<h2>{{.Title}}</h2>
{{if .Rows}}<p><small>{{.Rows}} observations</small></p>{{end}}
{{if .Figure}}<figure><img src="{{.Figure}}" alt="{{.Title}}">{{if .Caption}}<figcaption>{{.Caption}}{{if .Empty}} No observations matched the selection.{{end}}</figcaption>{{end}}</figure>
{{else}}{{if .Caption}}<p>{{.Caption}}</p>{{end}}{{end}}
{{if .Genes}}<table><thead><tr><th>Symbol</th><th>Category</th><th>Name</th><th>Location</th></tr></thead><tbody>
{{range .Genes}}<tr><td>{{.Symbol}}</td><td>{{.Category}}</td><td>{{.Name}}</td><td>{{.Location}}</td></tr>
{{end}}</tbody></table>{{end}}
{{range .Files}}<p><a href="{{.}}">{{.}}</a></p>{{end}}
</section>
{{end}}</body></html>
`))

func renderIndex(page indexPage) ([]byte, error) {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("render index: %w", err)
	}
	return buf.Bytes(), nil
}
