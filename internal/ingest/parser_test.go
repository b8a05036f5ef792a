package ingest

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "datapulse/internal/errors"
	"datapulse/internal/shared/testutil"
)

func newTestParser(t *testing.T, opts Options) (*Parser, *testutil.BufferedSlogHandler) {
	logger, handler := testutil.NewTestLogger(t)
	return NewParser(opts, logger), handler
}

func TestParseSingleFile(t *testing.T) {
	p, handler := newTestParser(t, Options{})
	data := testutil.NewResultsWorkbook(t,
		testutil.ResultRow(1, "S1", "CS101", "A", "CS"),
		testutil.ResultRow(1, "S1", "CS102", "B", "CS"),
		testutil.ResultRow(1, " S2 ", " cs101 ", " O ", "EC"),
	)

	rows, err := p.Parse(context.Background(), []Source{{Name: "sem1.xlsx", Data: data}})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, RawRow{
		File: "sem1.xlsx", Row: 2, Semester: 1,
		RegistrationNumber: "S1", SubjectCode: "CS101", Grade: "A", DepartmentCode: "CS",
	}, rows[0])
	assert.Equal(t, "S2", rows[2].RegistrationNumber)
	assert.Equal(t, " cs101 ", rows[2].SubjectCode)
	assert.Equal(t, "O", rows[2].Grade)
	assert.Equal(t, 4, rows[2].Row)

	testutil.AssertLogContains(t, handler, slog.LevelInfo, "parse complete")
	assert.True(t, handler.ContainsAttr("rows", int64(3)))
}

func TestParseKeepsFileOrder(t *testing.T) {
	p, _ := newTestParser(t, Options{Workers: 3})

	var sources []Source
	for i := 1; i <= 6; i++ {
		sources = append(sources, Source{
			Name: fmt.Sprintf("f%d.xlsx", i),
			Data: testutil.NewResultsWorkbook(t,
				testutil.ResultRow(i, fmt.Sprintf("R%d", i), "MA101", "A", ""),
				testutil.ResultRow(i, fmt.Sprintf("R%d", i), "MA102", "B", ""),
			),
		})
	}

	rows, err := p.Parse(context.Background(), sources)
	require.NoError(t, err)
	require.Len(t, rows, 12)
	for i, row := range rows {
		assert.Equal(t, fmt.Sprintf("f%d.xlsx", i/2+1), row.File)
		assert.Equal(t, i/2+1, row.Semester)
	}
}

func TestParseBatchLimit(t *testing.T) {
	p, _ := newTestParser(t, Options{MaxFiles: 2})
	data := testutil.NewResultsWorkbook(t, testutil.ResultRow(1, "R1", "MA101", "A", ""))

	_, err := p.Parse(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTypeValidation, apperrors.TypeOf(err))
	assert.False(t, stderrors.Is(err, apperrors.ErrBatchLimit))
	assert.Contains(t, err.Error(), "batch has no files")

	_, err = p.Parse(context.Background(), []Source{{"a.xlsx", data}, {"b.xlsx", data}, {"c.xlsx", data}})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrBatchLimit))
	assert.Contains(t, err.Error(), "batch has 3 file(s), accepted range is 1..2")

	rows, err := p.Parse(context.Background(), []Source{{"a.xlsx", data}, {"b.xlsx", data}})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestParseLegacyXLS(t *testing.T) {
	p, _ := newTestParser(t, Options{})
	data, err := os.ReadFile("testdata/results.xls")
	require.NoError(t, err)

	// title row, a blank row, the header, three results
	rows, err := p.Parse(context.Background(), []Source{{Name: "results.xls", Data: data}})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, RawRow{
		File: "results.xls", Row: 4, Semester: 1,
		RegistrationNumber: "S1", SubjectCode: "CS101", Grade: "A", DepartmentCode: "CS",
	}, rows[0])
	assert.Equal(t, "CS102", rows[1].SubjectCode)
	assert.Equal(t, "S2", rows[2].RegistrationNumber)
	assert.Equal(t, "O", rows[2].Grade)
	assert.Equal(t, "EC", rows[2].DepartmentCode)
}

func TestParseLegacyXLSTruncated(t *testing.T) {
	p, _ := newTestParser(t, Options{})
	data, err := os.ReadFile("testdata/results.xls")
	require.NoError(t, err)

	_, err = p.Parse(context.Background(), []Source{{Name: "cut.xls", Data: data[:700]}})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrFileFormat))
}

func TestParseDefaultBatchLimitIsTen(t *testing.T) {
	p, _ := newTestParser(t, Options{})
	data := testutil.NewResultsWorkbook(t, testutil.ResultRow(1, "R1", "MA101", "A", ""))

	sources := make([]Source, 11)
	for i := range sources {
		sources[i] = Source{Name: fmt.Sprintf("f%d.xlsx", i), Data: data}
	}
	_, err := p.Parse(context.Background(), sources)
	assert.True(t, stderrors.Is(err, apperrors.ErrBatchLimit))

	_, err = p.Parse(context.Background(), sources[:10])
	assert.NoError(t, err)
}

func TestParseColumnMissing(t *testing.T) {
	p, _ := newTestParser(t, Options{})
	data := testutil.NewWorkbook(t, "Results",
		[]any{"SEM", "REGNO", "SUBJECT", "CNo"},
		[]any{1, "R1", "MA101", "CS"},
	)

	_, err := p.Parse(context.Background(), []Source{{Name: "odd.xlsx", Data: data}})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrColumnMissing))

	var appErr *apperrors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, []string{"SCODE", "GR"}, appErr.Context["columns"])
	assert.Equal(t, "odd.xlsx", appErr.Context["file"])
}

func TestParseCNoIsOptional(t *testing.T) {
	p, _ := newTestParser(t, Options{})
	data := testutil.NewWorkbook(t, "Sheet1",
		[]any{"sem", " RegNo ", "SCode", "Gr"},
		[]any{2, "R9", "PH201", "B+"},
	)

	rows, err := p.Parse(context.Background(), []Source{{Name: "x.xlsx", Data: data}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].DepartmentCode)
	assert.Equal(t, "B+", rows[0].Grade)
}

func TestParseHeaderBelowTitleRows(t *testing.T) {
	p, _ := newTestParser(t, Options{})
	data := testutil.NewWorkbook(t, "Results",
		[]any{"Anna University - End Semester Results"},
		[]any{},
		[]any{"CNo", "SEM", "REGNO", "SCODE", "GR"},
		[]any{"EC", 5, "R1", "EC501", "A"},
		[]any{},
		[]any{"EC", 5, "R2", "EC501", "U"},
	)

	rows, err := p.Parse(context.Background(), []Source{{Name: "titled.xlsx", Data: data}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 4, rows[0].Row)
	assert.Equal(t, 6, rows[1].Row)
	assert.Equal(t, "EC", rows[1].DepartmentCode)
}

func TestParseRowErrors(t *testing.T) {
	tests := []struct {
		name    string
		row     []any
		wantErr string
	}{
		{"semester zero", []any{0, "R1", "MA101", "A"}, `SEM "0" is not a positive integer`},
		{"semester text", []any{"III", "R1", "MA101", "A"}, `SEM "III" is not a positive integer`},
		{"semester fraction", []any{"2.5", "R1", "MA101", "A"}, `SEM "2.5"`},
		{"empty regno", []any{1, " ", "MA101", "A"}, "REGNO is empty"},
		{"empty subject", []any{1, "R1", "", "A"}, "SCODE is empty"},
		{"empty grade", []any{1, "R1", "MA101"}, "GR is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestParser(t, Options{})
			data := testutil.NewWorkbook(t, "Results",
				[]any{"SEM", "REGNO", "SCODE", "GR"},
				[]any{1, "R0", "MA100", "A"},
				tt.row,
			)

			_, err := p.Parse(context.Background(), []Source{{Name: "bad.xlsx", Data: data}})
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, apperrors.ErrFileFormat))
			assert.Contains(t, err.Error(), "bad.xlsx: row 3: "+tt.wantErr)
		})
	}
}

func TestParseOneBadFileFailsBatch(t *testing.T) {
	p, handler := newTestParser(t, Options{Workers: 1})
	good := testutil.NewResultsWorkbook(t, testutil.ResultRow(1, "R1", "MA101", "A", ""))

	rows, err := p.Parse(context.Background(), []Source{
		{Name: "good.xlsx", Data: good},
		{Name: "notes.txt", Data: []byte("hello")},
		{Name: "good2.xlsx", Data: good},
	})
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.True(t, stderrors.Is(err, apperrors.ErrFileFormat))
	assert.Contains(t, err.Error(), "notes.txt")
	testutil.AssertLogContains(t, handler, slog.LevelError, "parse failed")
}

func TestParseCorruptWorkbook(t *testing.T) {
	p, _ := newTestParser(t, Options{})
	data := testutil.NewResultsWorkbook(t, testutil.ResultRow(1, "R1", "MA101", "A", ""))

	// keep the zip signature so sniffing passes, break the archive body
	corrupt := append([]byte{}, data[:64]...)

	_, err := p.Parse(context.Background(), []Source{{Name: "cut.xlsx", Data: corrupt}})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrFileFormat))
}

func TestParseCancelledContext(t *testing.T) {
	p, _ := newTestParser(t, Options{})
	data := testutil.NewResultsWorkbook(t, testutil.ResultRow(1, "R1", "MA101", "A", ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Parse(ctx, []Source{{Name: "a.xlsx", Data: data}})
	assert.ErrorIs(t, err, context.Canceled)
}
