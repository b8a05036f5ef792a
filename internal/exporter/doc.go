// Package exporter renders performance reports for spreadsheet tools.
//
// Writer supports three formats:
//
// CSV: one row per student and subject with the SGPA of that semester and
// the CGPA, prefixed with a UTF-8 BOM so Excel detects the encoding.
//
// XLSX: a workbook with Students, Subjects and Departments sheets, plus a
// Comparison sheet when the report spans several departments.
//
// JSON: the report as served by the HTTP API.
//
// Example usage:
//
//	w := exporter.NewWriter(logger)
//	format, err := exporter.FormatFromPath("report.xlsx")
//	if err != nil {
//		return err
//	}
//	err = w.WriteFile(ctx, "report.xlsx", format, report)
package exporter
