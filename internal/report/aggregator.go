// Package report assembles computed student performances into the report
// handed to renderers and exporters.
package report

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"datapulse/internal/department"
	"datapulse/internal/records"
	"datapulse/pkg/contracts/domain"
)

// Input is everything one report is built from
type Input struct {
	Phase        domain.ReportPhase
	Department   string
	Performances []domain.StudentPerformance
	Departments  []domain.DepartmentStats
	// Credits supply subject and faculty names when known
	Credits []domain.SubjectCredit
}

// Aggregator builds performance reports
type Aggregator struct {
	topN   int
	logger *slog.Logger
	now    func() time.Time
}

// NewAggregator creates an aggregator that ranks at most topN students
func NewAggregator(topN int, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if topN < 0 {
		topN = 0
	}
	return &Aggregator{
		topN:   topN,
		logger: logger.With(slog.String("component", "report_aggregator")),
		now:    time.Now,
	}
}

// Aggregate builds the report. The department filter narrows students and
// subjects; the department list and comparison always span the whole set.
func (a *Aggregator) Aggregate(ctx context.Context, in Input) *domain.PerformanceReport {
	students := department.FilterPerformances(in.Performances, in.Department)
	cumulative := in.Phase == domain.ReportPhaseCumulative

	display := strings.TrimSpace(in.Department)
	if d, ok := department.Lookup(in.Departments, in.Department); ok && display != "" {
		display = d.DepartmentCode
	}

	rep := &domain.PerformanceReport{
		Phase:          in.Phase,
		Department:     display,
		GeneratedAt:    a.now().UTC(),
		Students:       students,
		Departments:    in.Departments,
		Subjects:       summarizeSubjects(students, in.Credits),
		TopPerformers:  rank(students, cumulative, a.topN),
		PassPercentage: passPercentage(students),
	}
	if rep.Students == nil {
		rep.Students = []domain.StudentPerformance{}
	}
	if len(in.Departments) > 1 {
		rep.Comparison = compare(in.Performances, in.Departments, cumulative)
	}

	a.logger.InfoContext(ctx, "report aggregated",
		slog.String("phase", string(in.Phase)),
		slog.String("department", rep.Department),
		slog.Int("students", len(students)),
		slog.Int("subjects", len(rep.Subjects)),
		slog.Bool("comparison", rep.HasComparison()))
	return rep
}

// Score is the ranking metric of a student: CGPA once cumulative results
// exist, otherwise the SGPA of the latest semester.
func Score(p domain.StudentPerformance, cumulative bool) (float64, bool) {
	if cumulative && p.Cumulative {
		return p.CGPA, true
	}
	return p.LatestSGPA()
}

func compare(perfs []domain.StudentPerformance, stats []domain.DepartmentStats, cumulative bool) []domain.DepartmentComparison {
	byDept := make(map[string][]domain.StudentPerformance)
	for _, p := range perfs {
		code := records.NormalizeCode(p.DepartmentCode)
		byDept[code] = append(byDept[code], p)
	}

	out := make([]domain.DepartmentComparison, 0, len(stats))
	for _, s := range stats {
		group := byDept[records.NormalizeCode(s.DepartmentCode)]
		c := domain.DepartmentComparison{
			DepartmentCode:       s.DepartmentCode,
			DistinctStudentCount: s.DistinctStudentCount,
			PassPercentage:       passPercentage(group),
		}

		var sgpaSum, cgpaSum float64
		var sgpaN, cgpaN int
		for _, p := range group {
			if v, ok := p.LatestSGPA(); ok {
				sgpaSum += v
				sgpaN++
			}
			if cumulative && p.Cumulative {
				cgpaSum += p.CGPA
				cgpaN++
			}
			if score, ok := Score(p, cumulative); ok && score > c.HighestScore {
				c.HighestScore = score
			}
			if p.ArrearCount > 0 {
				c.StudentsWithArrears++
			}
		}
		if sgpaN > 0 {
			c.AverageSGPA = round2(sgpaSum / float64(sgpaN))
		}
		if cgpaN > 0 {
			c.AverageCGPA = round2(cgpaSum / float64(cgpaN))
		}
		out = append(out, c)
	}
	return out
}

func summarizeSubjects(perfs []domain.StudentPerformance, credits []domain.SubjectCredit) []domain.SubjectSummary {
	names := make(map[string]domain.SubjectCredit, len(credits))
	for _, c := range credits {
		names[records.NormalizeCode(c.SubjectCode)] = c
	}

	var out []domain.SubjectSummary
	position := make(map[string]int)
	for _, p := range perfs {
		for _, r := range p.SubjectResults {
			code := records.NormalizeCode(r.SubjectCode)
			i, ok := position[code]
			if !ok {
				i = len(out)
				position[code] = i
				out = append(out, domain.SubjectSummary{
					SubjectCode:       r.SubjectCode,
					SubjectName:       names[code].SubjectName,
					FacultyName:       names[code].FacultyName,
					GradeDistribution: make(map[string]int),
				})
			}
			out[i].Appeared++
			if r.Passed {
				out[i].Passed++
			}
			out[i].GradeDistribution[r.Grade]++
		}
	}
	for i := range out {
		out[i].PassPercentage = percent(out[i].Passed, out[i].Appeared)
	}
	if out == nil {
		out = []domain.SubjectSummary{}
	}
	return out
}

// rank orders students without arrears by score, highest first, ties by
// registration number. Equal scores share a rank.
func rank(perfs []domain.StudentPerformance, cumulative bool, topN int) []domain.RankedStudent {
	candidates := make([]domain.RankedStudent, 0, len(perfs))
	for _, p := range perfs {
		if p.ArrearCount > 0 {
			continue
		}
		score, ok := Score(p, cumulative)
		if !ok {
			continue
		}
		candidates = append(candidates, domain.RankedStudent{
			RegistrationNumber: p.RegistrationNumber,
			DepartmentCode:     p.DepartmentCode,
			Score:              score,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].RegistrationNumber < candidates[j].RegistrationNumber
	})

	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	for i := range candidates {
		if i > 0 && candidates[i].Score == candidates[i-1].Score {
			candidates[i].Rank = candidates[i-1].Rank
		} else {
			candidates[i].Rank = i + 1
		}
	}
	return candidates
}

// passPercentage is the share of students with no arrears
func passPercentage(perfs []domain.StudentPerformance) float64 {
	passed := 0
	for _, p := range perfs {
		if p.AllPassed() {
			passed++
		}
	}
	return percent(passed, len(perfs))
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(n) * 100 / float64(total))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
