package report

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/ehr/eyeexam/internal/domain/examination"
)

func TestRenderWorkbook_MatchesInteractive(t *testing.T) {
	snap := sampleSnapshot()
	b, err := RenderWorkbook(snap)
	if err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(workbookSheet)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rows[0], WorkbookHeader) {
		t.Errorf("header = %v", rows[0])
	}
	want := WorkbookRows(RenderInteractive(snap))
	if len(rows)-1 != len(want) || len(want) != len(examination.Fields()) {
		t.Fatalf("got %d data rows, want %d (one per field)", len(rows)-1, len(examination.Fields()))
	}
	for i, w := range want {
		if !reflect.DeepEqual(rows[i+1], w) {
			t.Errorf("row %d = %v, want %v", i+1, rows[i+1], w)
		}
	}
}

func TestRenderWorkbook_Layout(t *testing.T) {
	b, err := RenderWorkbook(sampleSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	for col, want := range map[string]float64{"A": 28, "B": 28, "C": 24, "D": 60} {
		got, err := f.GetColWidth(workbookSheet, col)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("column %s width = %v, want %v", col, got, want)
		}
	}
}

func TestWorkbookRows_StripsRichText(t *testing.T) {
	for _, row := range WorkbookRows(RenderInteractive(sampleSnapshot())) {
		switch row[2] {
		case "chief_complaint":
			if row[3] != "Blurred distance vision & glare" {
				t.Errorf("chief_complaint exported as %q", row[3])
			}
			if row[0] != "Patient History" || row[1] != "Chief Complaint" {
				t.Errorf("unexpected labels %v", row)
			}
		case "distance_od_ucva":
			if row[1] != "Distance OD UCVA" || row[3] != "6/6" {
				t.Errorf("unexpected acuity row %v", row)
			}
		}
	}
}
