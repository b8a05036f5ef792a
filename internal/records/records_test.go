package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapulse/internal/ingest"
	"datapulse/internal/shared/testutil"
)

func raw(file string, row, sem int, regNo, subject, grade, dept string) ingest.RawRow {
	return ingest.RawRow{
		File: file, Row: row, Semester: sem,
		RegistrationNumber: regNo, SubjectCode: subject, Grade: grade, DepartmentCode: dept,
	}
}

func TestNormalizeLaterRowWinsAtFirstPosition(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	n := NewNormalizer(logger)

	set := n.Normalize(context.Background(), []ingest.RawRow{
		raw("a.xlsx", 2, 1, "S1", "CS101", "U", "CS"),
		raw("a.xlsx", 3, 1, "S1", "CS102", "B", "CS"),
		raw("a.xlsx", 4, 1, "S1", "cs101 ", "A", "CS"),
	})

	recs := set.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "A", recs[0].Grade)
	assert.Equal(t, "cs101 ", recs[0].SubjectCode)
	assert.Equal(t, 4, recs[0].SourceRow)
	assert.Equal(t, "CS102", recs[1].SubjectCode)

	assert.True(t, handler.ContainsAttr("duplicates", int64(1)))
}

func TestNormalizeKeepsDistinctSemesters(t *testing.T) {
	set := NewNormalizer(nil).Normalize(context.Background(), []ingest.RawRow{
		raw("a", 2, 1, "S1", "MA101", "RA", ""),
		raw("a", 3, 2, "S1", "MA101", "B", ""),
		raw("a", 4, 2, "S2", "MA101", "A", ""),
	})
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, []int{1, 2}, set.Semesters())
}

func TestNormalizeIsIdempotent(t *testing.T) {
	rows := []ingest.RawRow{
		raw("a", 2, 1, "S1", "CS101", "A", "CS"),
		raw("a", 3, 1, "S1", "CS102", "B", "CS"),
		raw("a", 4, 1, "S2", "CS101", "O", "CS"),
	}
	n := NewNormalizer(nil)

	once := n.Normalize(context.Background(), rows)
	twice := n.Normalize(context.Background(), append(append([]ingest.RawRow{}, rows...), rows...))
	assert.Equal(t, once.Records(), twice.Records())

	merged := once.Merge(n.Normalize(context.Background(), rows))
	assert.Equal(t, once.Records(), merged.Records())
}

func TestMergeDoesNotModifyInputs(t *testing.T) {
	n := NewNormalizer(nil)
	base := n.Normalize(context.Background(), []ingest.RawRow{
		raw("a", 2, 1, "S1", "CS101", "U", "CS"),
	})
	update := n.Normalize(context.Background(), []ingest.RawRow{
		raw("b", 2, 1, "S1", "CS101", "B", "CS"),
		raw("b", 3, 1, "S3", "EC101", "A", "EC"),
	})

	merged := base.Merge(update)
	require.Equal(t, 2, merged.Len())
	assert.Equal(t, "B", merged.Records()[0].Grade)
	assert.Equal(t, "b", merged.Records()[0].SourceFile)

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, "U", base.Records()[0].Grade)

	rec, ok := merged.Lookup(Key{RegistrationNumber: "S3", Semester: 1, SubjectCode: "EC101"})
	require.True(t, ok)
	assert.Equal(t, "A", rec.Grade)

	assert.Equal(t, 1, base.Merge(nil).Len())
}

func TestSubjectCodesFirstSeen(t *testing.T) {
	set := NewNormalizer(nil).Normalize(context.Background(), []ingest.RawRow{
		raw("a", 2, 1, "S1", "PH102", "A", ""),
		raw("a", 3, 1, "S1", "CS101", "A", ""),
		raw("a", 4, 1, "S2", "ph102", "B", ""),
		raw("a", 5, 2, "S2", "MA201", "B", ""),
	})
	assert.Equal(t, []string{"PH102", "CS101", "MA201"}, set.SubjectCodes())
}

func TestRecordsReturnsCopy(t *testing.T) {
	set := FromRecords(nil)
	assert.Equal(t, 0, set.Len())

	var nilSet *Set
	assert.Equal(t, 0, nilSet.Len())
	assert.Nil(t, nilSet.Records())

	set = NewNormalizer(nil).Normalize(context.Background(), []ingest.RawRow{raw("a", 2, 1, "S1", "X", "A", "")})
	recs := set.Records()
	recs[0].Grade = "changed"
	assert.Equal(t, "A", set.Records()[0].Grade)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "CS101", NormalizeCode("  cs101\t"))
	assert.Equal(t, "", NormalizeCode("   "))
}
