package domain

// StudentRecord is one examination result row after normalization.
// At most one record exists per (RegistrationNumber, Semester, SubjectCode).
type StudentRecord struct {
	RegistrationNumber string `json:"registration_number" validate:"required"`
	Semester           int    `json:"semester" validate:"min=1"`
	DepartmentCode     string `json:"department_code,omitempty"`
	SubjectCode        string `json:"subject_code" validate:"required"`
	Grade              string `json:"grade" validate:"required"`

	// Provenance of the row that last wrote this record
	SourceFile string `json:"source_file,omitempty"`
	SourceRow  int    `json:"source_row,omitempty"`
}

// DepartmentStats is derived from a record set and never stored on its own.
type DepartmentStats struct {
	DepartmentCode       string `json:"department_code"`
	DistinctStudentCount int    `json:"distinct_student_count"`
}

// SubjectResult is the graded outcome of one subject for one student.
type SubjectResult struct {
	SubjectCode       string  `json:"subject_code"`
	Semester          int     `json:"semester"`
	Grade             string  `json:"grade"`
	GradePoint        float64 `json:"grade_point"`
	CreditValue       float64 `json:"credit_value"`
	IsCurrentSemester bool    `json:"is_current_semester"`
	Passed            bool    `json:"passed"`
}

// StudentPerformance is produced by the grade-point engine and replaced
// wholesale on every recomputation.
type StudentPerformance struct {
	RegistrationNumber string          `json:"registration_number"`
	DepartmentCode     string          `json:"department_code,omitempty"`
	SGPABySemester     map[int]float64 `json:"sgpa_by_semester"`
	CGPA               float64         `json:"cgpa"`
	Cumulative         bool            `json:"cumulative"`
	ArrearCount        int             `json:"arrear_count"`
	SubjectResults     []SubjectResult `json:"subject_results"`
}

// LatestSGPA returns the SGPA of the highest semester that has one.
func (p StudentPerformance) LatestSGPA() (float64, bool) {
	best, found := 0, false
	for sem := range p.SGPABySemester {
		if !found || sem > best {
			best, found = sem, true
		}
	}
	if !found {
		return 0, false
	}
	return p.SGPABySemester[best], true
}

// AllPassed reports whether the student has no failing subject result.
func (p StudentPerformance) AllPassed() bool {
	return p.ArrearCount == 0
}
