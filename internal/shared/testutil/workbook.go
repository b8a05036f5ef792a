package testutil

import (
	"testing"

	"github.com/xuri/excelize/v2"
)

// ResultsHeader is the standard column layout of an examination export
var ResultsHeader = []any{"SEM", "REGNO", "SCODE", "GR", "CNo"}

// ResultRow builds one row in ResultsHeader order
func ResultRow(sem int, regNo, subject, grade, dept string) []any {
	return []any{sem, regNo, subject, grade, dept}
}

// NewWorkbook renders rows into an in-memory .xlsx on a sheet named
// sheet. The first row is written as given, so callers pass the header
// themselves (or a deliberately broken one).
func NewWorkbook(t *testing.T, sheet string, rows ...[]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Results"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		t.Fatalf("rename sheet: %v", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("write row %d: %v", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("render workbook: %v", err)
	}
	return buf.Bytes()
}

// NewResultsWorkbook renders ResultsHeader followed by rows
func NewResultsWorkbook(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	all := make([][]any, 0, len(rows)+1)
	all = append(all, ResultsHeader)
	all = append(all, rows...)
	return NewWorkbook(t, "Results", all...)
}
