package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "datapulse/internal/errors"
)

// Column names of the row contract
const (
	ColSemester     = "SEM"
	ColRegNo        = "REGNO"
	ColSubjectCode  = "SCODE"
	ColGrade        = "GR"
	ColDepartmentNo = "CNO"
)

// RequiredColumns must all appear in the header row
var RequiredColumns = []string{ColSemester, ColRegNo, ColSubjectCode, ColGrade}

type sheetGrid struct {
	name string
	rows [][]string
}

type header struct {
	row     int
	columns map[string]int
}

func (h header) has(col string) bool {
	_, ok := h.columns[col]
	return ok
}

// mapColumns maps known column names to indexes, first occurrence wins
func mapColumns(cells []string) map[string]int {
	columns := make(map[string]int)
	for i, cell := range cells {
		name := strings.ToUpper(strings.TrimSpace(cell))
		switch name {
		case ColSemester, ColRegNo, ColSubjectCode, ColGrade, ColDepartmentNo:
			if _, seen := columns[name]; !seen {
				columns[name] = i
			}
		}
	}
	return columns
}

func requiredPresent(columns map[string]int) int {
	n := 0
	for _, col := range RequiredColumns {
		if _, ok := columns[col]; ok {
			n++
		}
	}
	return n
}

// findHeader returns the first row within scan rows that has every required
// column. When none does, best is the row closest to a full header.
func findHeader(rows [][]string, scan int) (found header, ok bool, best header) {
	bestCount := 0
	for i := 0; i < len(rows) && i < scan; i++ {
		columns := mapColumns(rows[i])
		count := requiredPresent(columns)
		if count == len(RequiredColumns) {
			return header{row: i, columns: columns}, true, best
		}
		if count > bestCount {
			bestCount = count
			best = header{row: i, columns: columns}
		}
	}
	return header{}, false, best
}

// extractRows reads data rows from the first sheet with a complete header
func extractRows(file string, sheets []sheetGrid, scan int) ([]RawRow, string, error) {
	var best header
	for _, sh := range sheets {
		hdr, ok, candidate := findHeader(sh.rows, scan)
		if !ok {
			if requiredPresent(candidate.columns) > requiredPresent(best.columns) {
				best = candidate
			}
			continue
		}

		rows, err := readDataRows(file, sh.rows, hdr)
		return rows, sh.name, err
	}

	missing := make([]string, 0, len(RequiredColumns))
	for _, col := range RequiredColumns {
		if !best.has(col) {
			missing = append(missing, col)
		}
	}
	return nil, "", apperrors.NewColumnMissingError(file, missing)
}

func readDataRows(file string, rows [][]string, hdr header) ([]RawRow, error) {
	out := make([]RawRow, 0, len(rows)-hdr.row-1)

	for i := hdr.row + 1; i < len(rows); i++ {
		cells := rows[i]
		if isBlank(cells) {
			continue
		}
		rowNum := i + 1

		cell := func(col string) string {
			idx, ok := hdr.columns[col]
			if !ok || idx >= len(cells) {
				return ""
			}
			return cells[idx]
		}

		semText := strings.TrimSpace(cell(ColSemester))
		sem, ok := parseSemester(semText)
		if !ok {
			return nil, rowError(file, rowNum, fmt.Sprintf("SEM %q is not a positive integer", semText))
		}

		regNo := strings.TrimSpace(cell(ColRegNo))
		subject := cell(ColSubjectCode)
		grade := strings.TrimSpace(cell(ColGrade))
		switch {
		case regNo == "":
			return nil, rowError(file, rowNum, "REGNO is empty")
		case strings.TrimSpace(subject) == "":
			return nil, rowError(file, rowNum, "SCODE is empty")
		case grade == "":
			return nil, rowError(file, rowNum, "GR is empty")
		}

		out = append(out, RawRow{
			File:               file,
			Row:                rowNum,
			Semester:           sem,
			RegistrationNumber: regNo,
			SubjectCode:        subject,
			Grade:              grade,
			DepartmentCode:     cell(ColDepartmentNo),
		})
	}
	return out, nil
}

func rowError(file string, row int, reason string) error {
	return apperrors.NewFileFormatError(file, fmt.Sprintf("row %d: %s", row, reason), nil).
		WithContext("row", row)
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseSemester accepts "3" and integral numerics such as "3.0"
func parseSemester(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, n > 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
