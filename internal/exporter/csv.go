package exporter

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"datapulse/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVHeaders are the columns of the CSV export
var CSVHeaders = []string{
	"REGNO", "CNo", "SEM", "SCODE", "GR", "GradePoint", "Credit",
	"CurrentSemester", "Passed", "SGPA", "CGPA", "Arrears",
}

// Writer renders reports in every supported format
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a new export writer
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger.With(slog.String("component", "exporter"))}
}

// Write renders rep to out in the given format
func (w *Writer) Write(ctx context.Context, out io.Writer, format Format, rep *domain.PerformanceReport) error {
	switch format {
	case FormatCSV:
		return w.WriteCSV(ctx, out, rep)
	case FormatXLSX:
		return w.WriteWorkbook(ctx, out, rep)
	case FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

// WriteFile renders rep into a new file at path, creating its directory
func (w *Writer) WriteFile(ctx context.Context, path string, format Format, rep *domain.PerformanceReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := w.Write(ctx, file, format, rep); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	w.logger.InfoContext(ctx, "report exported",
		slog.String("path", path),
		slog.String("format", string(format)),
		slog.Int("students", len(rep.Students)))
	return nil
}

// WriteCSV writes one row per student and subject. A student without
// subject results still gets a row.
func (w *Writer) WriteCSV(ctx context.Context, out io.Writer, rep *domain.PerformanceReport) error {
	if _, err := out.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	writer := csv.NewWriter(out)
	if err := writer.Write(CSVHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	rows := 0
	for _, p := range rep.Students {
		cgpa := ""
		if p.Cumulative {
			cgpa = formatFloat(p.CGPA)
		}

		if len(p.SubjectResults) == 0 {
			record := []string{p.RegistrationNumber, p.DepartmentCode, "", "", "", "", "", "", "", "", cgpa, formatInt(p.ArrearCount)}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write record %d: %w", rows, err)
			}
			rows++
			continue
		}

		for _, r := range p.SubjectResults {
			sgpa := ""
			if v, ok := p.SGPABySemester[r.Semester]; ok {
				sgpa = formatFloat(v)
			}
			record := []string{
				p.RegistrationNumber,
				p.DepartmentCode,
				formatInt(r.Semester),
				r.SubjectCode,
				r.Grade,
				formatFloat(r.GradePoint),
				formatFloat(r.CreditValue),
				formatBool(r.IsCurrentSemester),
				formatBool(r.Passed),
				sgpa,
				cgpa,
				formatInt(p.ArrearCount),
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write record %d: %w", rows, err)
			}
			rows++
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	w.logger.DebugContext(ctx, "csv written", slog.Int("rows", rows))
	return nil
}
