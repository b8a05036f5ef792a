package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "datapulse/internal/errors"
	"datapulse/internal/validation"
)

// Source is one uploaded file
type Source struct {
	Name string
	Data []byte
}

// RawRow is one data row as read from a sheet, before normalization.
// Row is the 1-based sheet row number.
type RawRow struct {
	File               string
	Row                int
	Semester           int
	RegistrationNumber string
	SubjectCode        string
	Grade              string
	DepartmentCode     string
}

// Options bounds a parse
type Options struct {
	MaxFiles       int
	HeaderScanRows int
	Workers        int
}

// DefaultOptions returns the stock batch limits
func DefaultOptions() Options {
	return Options{MaxFiles: 10, HeaderScanRows: 20, Workers: 4}
}

// Parser reads spreadsheet batches
type Parser struct {
	opts      Options
	validator *validation.FileValidator
	logger    *slog.Logger
}

// NewParser creates a parser. Zero option fields fall back to DefaultOptions.
func NewParser(opts Options, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = def.MaxFiles
	}
	if opts.HeaderScanRows <= 0 {
		opts.HeaderScanRows = def.HeaderScanRows
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	return &Parser{
		opts:      opts,
		validator: validation.NewFileValidator(logger),
		logger:    logger.With(slog.String("component", "parser")),
	}
}

// Parse decodes every source and returns their rows, file by file in the
// order given. Nothing is returned unless every file parses.
func (p *Parser) Parse(ctx context.Context, sources []Source) ([]RawRow, error) {
	if len(sources) == 0 {
		return nil, apperrors.NewAppError(apperrors.ErrTypeValidation, "batch has no files", nil)
	}
	if len(sources) > p.opts.MaxFiles {
		return nil, apperrors.NewBatchLimitError(len(sources), p.opts.MaxFiles)
	}

	start := time.Now()
	p.logger.InfoContext(ctx, "parse started", slog.Int("files", len(sources)))

	results := make([][]RawRow, len(sources))
	errs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return err
			}
			rows, err := p.parseOne(src)
			if err != nil {
				errs[i] = err
				return err
			}
			results[i] = rows
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		err = firstFileError(errs, err)
		p.logger.ErrorContext(ctx, "parse failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return nil, err
	}

	total := 0
	for _, rows := range results {
		total += len(rows)
	}
	all := make([]RawRow, 0, total)
	for _, rows := range results {
		all = append(all, rows...)
	}

	p.logger.InfoContext(ctx, "parse complete",
		slog.Int("files", len(sources)),
		slog.Int("rows", len(all)),
		slog.Duration("duration", time.Since(start)))
	return all, nil
}

// firstFileError prefers the lowest-index failure that is not a
// cancellation caused by another file failing.
func firstFileError(errs []error, fallback error) error {
	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return fallback
}

func (p *Parser) parseOne(src Source) ([]RawRow, error) {
	kind, err := p.validator.DetectSpreadsheet(src.Name, src.Data)
	if err != nil {
		return nil, err
	}

	var sheets []sheetGrid
	switch kind {
	case validation.KindXLSX:
		sheets, err = readXLSX(src.Data)
	case validation.KindXLS:
		sheets, err = readXLS(src.Data)
	default:
		err = fmt.Errorf("no reader for %s", kind)
	}
	if err != nil {
		return nil, apperrors.NewFileFormatError(src.Name, "cannot read workbook", err)
	}

	rows, sheet, err := extractRows(src.Name, sheets, p.opts.HeaderScanRows)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("file parsed",
		slog.String("file", src.Name),
		slog.String("sheet", sheet),
		slog.Int("rows", len(rows)))
	return rows, nil
}
