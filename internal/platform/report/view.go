// Package report renders an examination snapshot as an interactive section
// view, a printable HTML document and an XLSX workbook. Every output is built
// from the same []SectionView, so they always agree.
package report

import (
	"strings"

	"github.com/ehr/eyeexam/internal/domain/examination"
)

// Cell is one rendered field value.
type Cell struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	// Markup marks Value as editor-sanitized rich text, embedded verbatim.
	Markup bool `json:"markup,omitempty"`
	Empty  bool `json:"empty"`
}

// Row is a labeled line of a section. Span rows hold a single cell that
// covers both eye columns.
type Row struct {
	Label string `json:"label"`
	Cells []Cell `json:"cells"`
	Span  bool   `json:"span,omitempty"`
}

type SectionView struct {
	Name    string            `json:"name"`
	Style   examination.Style `json:"style"`
	Empty   bool              `json:"empty"`
	Columns []string          `json:"columns"`
	Rows    []Row             `json:"rows"`
}

var (
	gridColumns = []string{"Field", "Value"}
	eyeColumns  = []string{"", "OD", "OS"}
)

// RenderInteractive lays out every section of the vocabulary, in order. Empty
// sections are kept and flagged.
func RenderInteractive(snap *examination.Snapshot) []SectionView {
	sections := examination.Sections()
	out := make([]SectionView, 0, len(sections))
	for _, sec := range sections {
		view := SectionView{Name: sec.Name, Style: sec.Style}
		switch sec.Style {
		case examination.StyleEyePairTable:
			view.Columns = eyeColumns
			view.Rows = eyePairRows(snap, sec.Keys)
		case examination.StyleVisualAcuityTable:
			view.Columns = eyeColumns
			view.Rows = acuityRows(snap, sec.Keys)
		default:
			view.Columns = gridColumns
			for _, key := range sec.Keys {
				view.Rows = append(view.Rows, Row{Label: examination.FormatFieldName(key), Cells: []Cell{cellFor(snap, key)}})
			}
		}
		view.Empty = allEmpty(view.Rows)
		out = append(out, view)
	}
	return out
}

// eyePairRows pairs every OD key with its OS sibling. Keys without an eye
// token become span rows.
func eyePairRows(snap *examination.Snapshot, keys []string) []Row {
	inSection := make(map[string]bool, len(keys))
	for _, k := range keys {
		inSection[k] = true
	}
	var rows []Row
	for _, key := range keys {
		switch examination.EyeOf(key) {
		case examination.EyeNone:
			rows = append(rows, Row{
				Label: examination.FormatFieldName(key),
				Cells: []Cell{cellFor(snap, key)},
				Span:  true,
			})
		case examination.EyeOD:
			rows = append(rows, Row{
				Label: examination.FormatFieldName(examination.StripEye(key)),
				Cells: []Cell{cellFor(snap, key), cellFor(snap, examination.EyeSibling(key))},
			})
		case examination.EyeOS:
			// rendered with its OD sibling
			if !inSection[examination.EyeSibling(key)] {
				rows = append(rows, Row{
					Label: examination.FormatFieldName(examination.StripEye(key)),
					Cells: []Cell{{Key: examination.EyeSibling(key), Value: examination.LabelNotRecorded, Empty: true}, cellFor(snap, key)},
				})
			}
		}
	}
	return rows
}

// acuityRows emits UCVA, SCVA and BCVA in that order whatever the key order.
func acuityRows(snap *examination.Snapshot, keys []string) []Row {
	var rows []Row
	for _, m := range examination.AcuityMeasures {
		for _, key := range keys {
			if examination.EyeOf(key) == examination.EyeOD && strings.HasSuffix(key, "_"+m) {
				rows = append(rows, Row{
					Label: examination.FormatFieldName(m),
					Cells: []Cell{cellFor(snap, key), cellFor(snap, examination.EyeSibling(key))},
				})
			}
		}
	}
	return rows
}

func cellFor(snap *examination.Snapshot, key string) Cell {
	f, _ := examination.Lookup(key)
	v := snap.Get(key)
	empty := examination.IsEmpty(v)
	return Cell{
		Key:    key,
		Value:  examination.FormatValue(f, v),
		Markup: f.Type == examination.TypeRichText && !empty,
		Empty:  empty,
	}
}

func allEmpty(rows []Row) bool {
	for _, r := range rows {
		for _, c := range r.Cells {
			if !c.Empty {
				return false
			}
		}
	}
	return true
}
