package domain

import (
	"time"
)

// ReportPhase identifies which engine phase produced a report
type ReportPhase string

const (
	ReportPhaseCurrent    ReportPhase = "current"
	ReportPhaseCumulative ReportPhase = "cumulative"
)

// PerformanceReport is the result set handed to external report renderers
type PerformanceReport struct {
	Phase          ReportPhase            `json:"phase"`
	Department     string                 `json:"department,omitempty"`
	GeneratedAt    time.Time              `json:"generated_at"`
	Students       []StudentPerformance   `json:"students"`
	Departments    []DepartmentStats      `json:"departments"`
	Comparison     []DepartmentComparison `json:"comparison,omitempty"`
	Subjects       []SubjectSummary       `json:"subjects"`
	TopPerformers  []RankedStudent        `json:"top_performers"`
	PassPercentage float64                `json:"pass_percentage"`
}

// HasComparison reports whether the cross-department view was produced
func (r *PerformanceReport) HasComparison() bool {
	return len(r.Comparison) > 0
}

// DepartmentComparison holds aggregate metrics for one department
type DepartmentComparison struct {
	DepartmentCode       string  `json:"department_code"`
	DistinctStudentCount int     `json:"distinct_student_count"`
	AverageSGPA          float64 `json:"average_sgpa"`
	AverageCGPA          float64 `json:"average_cgpa,omitempty"`
	HighestScore         float64 `json:"highest_score"`
	PassPercentage       float64 `json:"pass_percentage"`
	StudentsWithArrears  int     `json:"students_with_arrears"`
}

// SubjectSummary aggregates all results recorded for one subject
type SubjectSummary struct {
	SubjectCode       string         `json:"subject_code"`
	SubjectName       string         `json:"subject_name,omitempty"`
	FacultyName       string         `json:"faculty_name,omitempty"`
	Appeared          int            `json:"appeared"`
	Passed            int            `json:"passed"`
	PassPercentage    float64        `json:"pass_percentage"`
	GradeDistribution map[string]int `json:"grade_distribution"`
}

// RankedStudent is one entry of the top-performer list
type RankedStudent struct {
	Rank               int     `json:"rank"`
	RegistrationNumber string  `json:"registration_number"`
	DepartmentCode     string  `json:"department_code,omitempty"`
	Score              float64 `json:"score"`
}
