package exporter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"datapulse/pkg/contracts/domain"
)

// Sheet names of the workbook export
const (
	SheetStudents    = "Students"
	SheetSubjects    = "Subjects"
	SheetDepartments = "Departments"
	SheetComparison  = "Comparison"
)

// WriteWorkbook writes rep as an XLSX workbook
func (w *Writer) WriteWorkbook(ctx context.Context, out io.Writer, rep *domain.PerformanceReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetStudents); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	sheets := []struct {
		name string
		rows [][]any
	}{
		{SheetStudents, studentRows(rep)},
		{SheetSubjects, subjectRows(rep)},
		{SheetDepartments, departmentRows(rep)},
	}
	if rep.HasComparison() {
		sheets = append(sheets, struct {
			name string
			rows [][]any
		}{SheetComparison, comparisonRows(rep)})
	}

	for i, sheet := range sheets {
		if i > 0 {
			if _, err := f.NewSheet(sheet.name); err != nil {
				return fmt.Errorf("failed to add sheet %s: %w", sheet.name, err)
			}
		}
		if err := fillSheet(f, sheet.name, sheet.rows, bold); err != nil {
			return err
		}
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	w.logger.DebugContext(ctx, "workbook written",
		slog.Int("sheets", len(sheets)),
		slog.Int("students", len(rep.Students)))
	return nil
}

func fillSheet(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	if len(rows) > 0 {
		if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
			return fmt.Errorf("failed to style %s header: %w", sheet, err)
		}
	}
	return nil
}

// reportSemesters is the sorted union of semesters with an SGPA
func reportSemesters(students []domain.StudentPerformance) []int {
	seen := make(map[int]bool)
	var sems []int
	for _, p := range students {
		for sem := range p.SGPABySemester {
			if !seen[sem] {
				seen[sem] = true
				sems = append(sems, sem)
			}
		}
	}
	sort.Ints(sems)
	return sems
}

func studentRows(rep *domain.PerformanceReport) [][]any {
	sems := reportSemesters(rep.Students)
	cumulative := rep.Phase == domain.ReportPhaseCumulative

	header := []any{"REGNO", "CNo"}
	for _, sem := range sems {
		header = append(header, fmt.Sprintf("SGPA S%d", sem))
	}
	if cumulative {
		header = append(header, "CGPA")
	}
	header = append(header, "Arrears")

	rows := [][]any{header}
	for _, p := range rep.Students {
		row := []any{p.RegistrationNumber, p.DepartmentCode}
		for _, sem := range sems {
			if v, ok := p.SGPABySemester[sem]; ok {
				row = append(row, v)
			} else {
				row = append(row, "")
			}
		}
		if cumulative {
			row = append(row, p.CGPA)
		}
		row = append(row, p.ArrearCount)
		rows = append(rows, row)
	}
	return rows
}

func subjectRows(rep *domain.PerformanceReport) [][]any {
	rows := [][]any{{"SCODE", "Subject", "Faculty", "Appeared", "Passed", "Pass %", "Grades"}}
	for _, s := range rep.Subjects {
		rows = append(rows, []any{
			s.SubjectCode, s.SubjectName, s.FacultyName,
			s.Appeared, s.Passed, s.PassPercentage,
			distribution(s.GradeDistribution),
		})
	}
	return rows
}

func departmentRows(rep *domain.PerformanceReport) [][]any {
	rows := [][]any{{"CNo", "Students"}}
	for _, d := range rep.Departments {
		rows = append(rows, []any{d.DepartmentCode, d.DistinctStudentCount})
	}
	return rows
}

func comparisonRows(rep *domain.PerformanceReport) [][]any {
	rows := [][]any{{"CNo", "Students", "Average SGPA", "Average CGPA", "Highest", "Pass %", "With arrears"}}
	for _, c := range rep.Comparison {
		rows = append(rows, []any{
			c.DepartmentCode, c.DistinctStudentCount, c.AverageSGPA, c.AverageCGPA,
			c.HighestScore, c.PassPercentage, c.StudentsWithArrears,
		})
	}
	return rows
}

// distribution renders grade counts as "A:2 B:1", symbols sorted
func distribution(counts map[string]int) string {
	symbols := make([]string, 0, len(counts))
	for sym := range counts {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	parts := make([]string, len(symbols))
	for i, sym := range symbols {
		parts[i] = fmt.Sprintf("%s:%d", sym, counts[sym])
	}
	return strings.Join(parts, " ")
}
