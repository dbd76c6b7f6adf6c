package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/ehr/eyeexam/internal/domain/examination"
)

const workbookSheet = "Examination"

// WorkbookHeader is the first row of the exported sheet.
var WorkbookHeader = []string{"Section", "Field", "Key", "Value"}

var workbookWidths = []struct {
	from, to string
	width    float64
}{
	{"A", "B", 28},
	{"C", "C", 24},
	{"D", "D", 60},
}

// RenderWorkbook writes one row per field, in section order. Rich text is
// exported as plain text.
func RenderWorkbook(snap *examination.Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", workbookSheet); err != nil {
		return nil, fmt.Errorf("workbook: %w", err)
	}
	if err := f.SetSheetRow(workbookSheet, "A1", &WorkbookHeader); err != nil {
		return nil, fmt.Errorf("workbook header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("workbook style: %w", err)
	}
	if err := f.SetRowStyle(workbookSheet, 1, 1, bold); err != nil {
		return nil, fmt.Errorf("workbook style: %w", err)
	}

	row := 2
	for _, line := range WorkbookRows(RenderInteractive(snap)) {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, fmt.Errorf("workbook row %d: %w", row, err)
		}
		if err := f.SetSheetRow(workbookSheet, cell, &line); err != nil {
			return nil, fmt.Errorf("workbook row %d: %w", row, err)
		}
		row++
	}
	for _, w := range workbookWidths {
		if err := f.SetColWidth(workbookSheet, w.from, w.to, w.width); err != nil {
			return nil, fmt.Errorf("workbook column %s: %w", w.from, err)
		}
	}
	if err := f.SetPanes(workbookSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("workbook panes: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("workbook write: %w", err)
	}
	return buf.Bytes(), nil
}

// WorkbookRows flattens section views into {section, field, key, value} rows.
func WorkbookRows(views []SectionView) [][]string {
	var out [][]string
	for _, v := range views {
		for _, r := range v.Rows {
			for _, c := range r.Cells {
				value := c.Value
				if c.Markup {
					value = StripMarkup(value)
				}
				out = append(out, []string{v.Name, examination.FormatFieldName(c.Key), c.Key, value})
			}
		}
	}
	return out
}
