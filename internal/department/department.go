// Package department groups student records by department code.
package department

import (
	"strings"

	"datapulse/internal/records"
	"datapulse/pkg/contracts/domain"
)

// Index returns the departments present in recs in first-seen order with
// the number of distinct registration numbers in each. Codes are grouped by
// their normalized form and reported as first seen, trimmed. Records without
// a department code form one implicit department with the empty code.
func Index(recs []domain.StudentRecord) []domain.DepartmentStats {
	var stats []domain.DepartmentStats
	position := make(map[string]int)
	students := make(map[string]map[string]bool)

	for _, r := range recs {
		code := records.NormalizeCode(r.DepartmentCode)
		i, ok := position[code]
		if !ok {
			i = len(stats)
			position[code] = i
			students[code] = make(map[string]bool)
			stats = append(stats, domain.DepartmentStats{DepartmentCode: strings.TrimSpace(r.DepartmentCode)})
		}
		if !students[code][r.RegistrationNumber] {
			students[code][r.RegistrationNumber] = true
			stats[i].DistinctStudentCount++
		}
	}
	return stats
}

// Lookup finds the department matching code in any case or spacing
func Lookup(stats []domain.DepartmentStats, code string) (domain.DepartmentStats, bool) {
	want := records.NormalizeCode(code)
	for _, s := range stats {
		if records.NormalizeCode(s.DepartmentCode) == want {
			return s, true
		}
	}
	return domain.DepartmentStats{}, false
}

// Filter returns the records of one department. An empty code means no
// department is selected and returns every record.
func Filter(recs []domain.StudentRecord, code string) []domain.StudentRecord {
	if code == "" {
		return recs
	}
	want := records.NormalizeCode(code)
	var out []domain.StudentRecord
	for _, r := range recs {
		if records.NormalizeCode(r.DepartmentCode) == want {
			out = append(out, r)
		}
	}
	return out
}

// FilterPerformances is Filter for computed results
func FilterPerformances(perfs []domain.StudentPerformance, code string) []domain.StudentPerformance {
	if code == "" {
		return perfs
	}
	want := records.NormalizeCode(code)
	var out []domain.StudentPerformance
	for _, p := range perfs {
		if records.NormalizeCode(p.DepartmentCode) == want {
			out = append(out, p)
		}
	}
	return out
}
