package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/eyeexam/internal/domain/examination"
)

// Document is the printable form of a snapshot.
type Document struct {
	VisitID     uuid.UUID
	GeneratedAt time.Time
	Missing     []string
	Sections    []SectionView
}

// NewDocument lays out snap for printing.
func NewDocument(snap *examination.Snapshot) *Document {
	return &Document{
		VisitID:     snap.VisitID,
		GeneratedAt: snap.GeneratedAt,
		Missing:     snap.Missing,
		Sections:    RenderInteractive(snap),
	}
}

// RenderPrintable returns a self-contained HTML document. Every value cell
// carries data-field and every section data-section and data-empty.
func RenderPrintable(snap *examination.Snapshot) (string, error) {
	var buf bytes.Buffer
	if err := printTemplate.Execute(&buf, NewDocument(snap)); err != nil {
		return "", fmt.Errorf("render printable report: %w", err)
	}
	return buf.String(), nil
}

// cellValue hands rich text to the template as trusted HTML.
func cellValue(c Cell) any {
	if c.Markup {
		return template.HTML(c.Value)
	}
	return c.Value
}

var printTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"cellValue": cellValue,
	"join":      strings.Join,
}).Parse(printHTML))

const printHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Eye Examination Report</title>
<style>
body { font-family: sans-serif; font-size: 11pt; margin: 1.5cm; }
h1 { font-size: 16pt; margin-bottom: 0; }
h2 { font-size: 12pt; border-bottom: 1px solid #999; }
table { border-collapse: collapse; width: 100%; margin-bottom: 1em; }
th, td { border: 1px solid #ccc; padding: 3px 6px; text-align: left; vertical-align: top; }
td.empty, p.empty { color: #888; font-style: italic; }
p.warning { color: #a00; }
section { page-break-inside: avoid; }
</style>
</head>
<body>
<header>
<h1>Eye Examination Report</h1>
<p class="meta">Visit {{.VisitID}}, generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}</p>
{{- if .Missing}}
<p class="warning" data-missing="{{join .Missing ","}}">Incomplete report: {{join .Missing ", "}} could not be loaded.</p>
{{- end}}
</header>
{{- range .Sections}}
<section data-section="{{.Name}}" data-empty="{{.Empty}}">
<h2>{{.Name}}</h2>
{{- if .Empty}}
<p class="empty">No findings recorded</p>
{{- end}}
<table class="{{.Style}}">
<thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr><th scope="row">{{.Label}}</th>
{{- if .Span}}{{with index .Cells 0}}<td colspan="2" data-field="{{.Key}}"{{if .Empty}} class="empty"{{end}}>{{cellValue .}}</td>{{end}}
{{- else}}{{range .Cells}}<td data-field="{{.Key}}"{{if .Empty}} class="empty"{{end}}>{{cellValue .}}</td>{{end}}{{end}}</tr>
{{- end}}
</tbody>
</table>
</section>
{{- end}}
</body>
</html>
`
