package grading

import (
	"math"

	"datapulse/internal/records"
	"datapulse/pkg/contracts/domain"
)

// weighted accumulates a credit-weighted grade-point average
type weighted struct {
	points  float64
	credits float64
}

func (w *weighted) add(r domain.SubjectResult, policy FailPolicy) {
	if !r.Passed {
		if policy == FailPolicyExclude {
			return
		}
		w.credits += r.CreditValue
		return
	}
	w.points += r.CreditValue * r.GradePoint
	w.credits += r.CreditValue
}

// value returns the average, false when no credits were accumulated
func (w weighted) value(precision int) (float64, bool) {
	if w.credits == 0 {
		return 0, false
	}
	return round(w.points/w.credits, precision), true
}

func round(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}

// countArrears counts subjects whose latest attempt failed
func countArrears(results []domain.SubjectResult) int {
	latest := make(map[string]domain.SubjectResult)
	for _, r := range results {
		code := records.NormalizeCode(r.SubjectCode)
		if prev, ok := latest[code]; !ok || r.Semester >= prev.Semester {
			latest[code] = r
		}
	}
	n := 0
	for _, r := range latest {
		if !r.Passed {
			n++
		}
	}
	return n
}
