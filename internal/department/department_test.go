package department

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapulse/pkg/contracts/domain"
)

func rec(regNo, dept, subject string) domain.StudentRecord {
	return domain.StudentRecord{RegistrationNumber: regNo, Semester: 1, DepartmentCode: dept, SubjectCode: subject, Grade: "A"}
}

func TestIndex(t *testing.T) {
	tests := []struct {
		name string
		recs []domain.StudentRecord
		want []domain.DepartmentStats
	}{
		{"empty", nil, nil},
		{
			"two departments first-seen order",
			[]domain.StudentRecord{
				rec("S1", "EC", "EC101"), rec("S2", "CS", "CS101"),
				rec("S1", "EC", "EC102"), rec("S3", "cs ", "CS101"),
			},
			[]domain.DepartmentStats{{"EC", 1}, {"CS", 2}},
		},
		{
			"first-seen spelling is displayed",
			[]domain.StudentRecord{rec("S1", " cse-a ", "CS101"), rec("S2", "CSE-A", "CS101")},
			[]domain.DepartmentStats{{"cse-a", 2}},
		},
		{
			"implicit department",
			[]domain.StudentRecord{rec("S1", "", "X"), rec("S2", "  ", "X"), rec("S1", "", "Y")},
			[]domain.DepartmentStats{{"", 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Index(tt.recs))
		})
	}
}

func TestIndexCountMatchesFilteredRegistrations(t *testing.T) {
	var recs []domain.StudentRecord
	for i := 0; i < 200; i++ {
		dept := []string{"CS", "EC", "ME"}[i%3]
		regNo := []string{"R1", "R2", "R3", "R4", "R5", "R6", "R7"}[i%7]
		recs = append(recs, rec(regNo, dept, "S"))
	}

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		rng.Shuffle(len(recs), func(i, j int) { recs[i], recs[j] = recs[j], recs[i] })

		for _, stat := range Index(recs) {
			distinct := make(map[string]bool)
			for _, r := range Filter(recs, stat.DepartmentCode) {
				distinct[r.RegistrationNumber] = true
			}
			assert.Equal(t, len(distinct), stat.DistinctStudentCount, stat.DepartmentCode)
		}
	}
}

func TestFilter(t *testing.T) {
	recs := []domain.StudentRecord{rec("S1", "CS", "A"), rec("S2", "EC", "A"), rec("S3", "cs", "B")}

	assert.Len(t, Filter(recs, ""), 3)
	assert.Len(t, Filter(recs, "CS"), 2)
	assert.Len(t, Filter(recs, " ec"), 1)
	assert.Empty(t, Filter(recs, "ME"))
}

func TestFilterPerformancesAndLookup(t *testing.T) {
	perfs := []domain.StudentPerformance{
		{RegistrationNumber: "S1", DepartmentCode: "CS"},
		{RegistrationNumber: "S2", DepartmentCode: "EC"},
	}
	require.Len(t, FilterPerformances(perfs, "EC"), 1)
	assert.Equal(t, "S2", FilterPerformances(perfs, "EC")[0].RegistrationNumber)
	assert.Len(t, FilterPerformances(perfs, ""), 2)

	stats := []domain.DepartmentStats{{"cse-a", 1}, {"EC", 4}}
	d, ok := Lookup(stats, " CSE-A")
	require.True(t, ok)
	assert.Equal(t, "cse-a", d.DepartmentCode)
	_, ok = Lookup(stats, "ME")
	assert.False(t, ok)
}
