// Package grading computes grade points, SGPA and CGPA.
//
// The engine runs two ordered phases over one record set. The current
// phase grades the designated semester(s) and yields SGPA from
// current-semester subjects only. The cumulative phase, allowed only after
// a successful current phase, yields CGPA across every semester up to the
// latest current one. Each phase validates its credit set first and
// commits nothing on failure.
package grading

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"datapulse/internal/credits"
	apperrors "datapulse/internal/errors"
	"datapulse/internal/records"
	"datapulse/pkg/contracts/domain"
)

// Phase is the engine state
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCurrent
	PhaseCumulative
)

func (p Phase) String() string {
	switch p {
	case PhaseCurrent:
		return "current"
	case PhaseCumulative:
		return "cumulative"
	default:
		return "idle"
	}
}

// CreditSet is a credit assignment together with the entry shape it uses
type CreditSet struct {
	Entries      []domain.SubjectCredit
	Capabilities domain.CreditCapabilities
}

// Options configures grading
type Options struct {
	Scale      *Scale
	FailPolicy FailPolicy
	Precision  int
}

// Engine holds the phase state of one record set. It is not safe for
// concurrent use.
type Engine struct {
	opts   Options
	logger *slog.Logger

	phase            Phase
	records          []domain.StudentRecord
	currentSemesters []int
	current          []domain.StudentPerformance
	cumulative       []domain.StudentPerformance
}

// NewEngine creates an idle engine. A nil scale selects DefaultScale.
func NewEngine(opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Scale == nil {
		opts.Scale = DefaultScale()
	}
	if opts.FailPolicy == "" {
		opts.FailPolicy = FailPolicyExclude
	}
	return &Engine{
		opts:   opts,
		logger: logger.With(slog.String("component", "grading_engine")),
	}
}

// Phase returns the last phase that completed
func (e *Engine) Phase() Phase {
	return e.phase
}

// CurrentSemesters returns the semesters graded by the current phase
func (e *Engine) CurrentSemesters() []int {
	return append([]int(nil), e.currentSemesters...)
}

// Results returns the output of the latest completed phase
func (e *Engine) Results() (Phase, []domain.StudentPerformance) {
	switch e.phase {
	case PhaseCumulative:
		return e.phase, e.cumulative
	case PhaseCurrent:
		return e.phase, e.current
	}
	return PhaseIdle, nil
}

// Invalidate drops every result, e.g. after the record set changed
func (e *Engine) Invalidate() {
	e.phase = PhaseIdle
	e.records = nil
	e.currentSemesters = nil
	e.current = nil
	e.cumulative = nil
}

// DropCumulative discards the cumulative result and falls back to the
// current phase, e.g. after the cumulative credit set changed
func (e *Engine) DropCumulative() {
	if e.phase == PhaseCumulative {
		e.phase = PhaseCurrent
	}
	e.cumulative = nil
}

// ComputeCurrent runs the current-semester phase. An empty semesters list
// designates the highest semester present. Rerunning it discards any
// cumulative result.
func (e *Engine) ComputeCurrent(ctx context.Context, recs []domain.StudentRecord, set CreditSet, semesters []int) ([]domain.StudentPerformance, error) {
	if len(recs) == 0 {
		return nil, apperrors.NewAppError(apperrors.ErrTypeValidation, "no records to grade", nil)
	}

	semesters, err := resolveSemesters(recs, semesters)
	if err != nil {
		return nil, err
	}
	inScope := make(map[int]bool, len(semesters))
	for _, s := range semesters {
		inScope[s] = true
	}
	scope := filterRecords(recs, func(r domain.StudentRecord) bool { return inScope[r.Semester] })

	table, err := e.gate(ctx, scope, set)
	if err != nil {
		return nil, err
	}

	students, err := e.grade(scope, table)
	if err != nil {
		return nil, err
	}

	out := make([]domain.StudentPerformance, 0, len(students))
	for _, st := range students {
		sgpa := make(map[int]float64)
		for _, sem := range semesters {
			var w weighted
			for _, r := range st.results {
				if r.Semester == sem && r.IsCurrentSemester {
					w.add(r, e.opts.FailPolicy)
				}
			}
			if v, ok := w.value(e.opts.Precision); ok {
				sgpa[sem] = v
			}
		}
		out = append(out, domain.StudentPerformance{
			RegistrationNumber: st.regNo,
			DepartmentCode:     st.dept,
			SGPABySemester:     sgpa,
			ArrearCount:        countArrears(st.results),
			SubjectResults:     st.results,
		})
	}

	e.phase = PhaseCurrent
	e.records = recs
	e.currentSemesters = semesters
	e.current = out
	e.cumulative = nil

	e.logger.InfoContext(ctx, "current phase complete",
		slog.Int("students", len(out)),
		slog.Any("semesters", semesters),
		slog.String("fail_policy", string(e.opts.FailPolicy)))
	return out, nil
}

// ComputeCumulative runs the cumulative phase over the record set graded by
// the last current phase.
func (e *Engine) ComputeCumulative(ctx context.Context, set CreditSet) ([]domain.StudentPerformance, error) {
	if e.phase == PhaseIdle {
		return nil, apperrors.NewPhaseOrderError("cumulative phase requires a completed current-semester phase")
	}

	latest := e.currentSemesters[len(e.currentSemesters)-1]
	scope := filterRecords(e.records, func(r domain.StudentRecord) bool { return r.Semester <= latest })

	table, err := e.gate(ctx, scope, set)
	if err != nil {
		return nil, err
	}

	students, err := e.grade(scope, table)
	if err != nil {
		return nil, err
	}

	previous := make(map[string]domain.StudentPerformance, len(e.current))
	for _, p := range e.current {
		previous[p.RegistrationNumber] = p
	}
	isCurrent := make(map[int]bool, len(e.currentSemesters))
	for _, s := range e.currentSemesters {
		isCurrent[s] = true
	}

	out := make([]domain.StudentPerformance, 0, len(students))
	for _, st := range students {
		var total weighted
		bySem := make(map[int]*weighted)
		for _, r := range st.results {
			total.add(r, e.opts.FailPolicy)
			w, ok := bySem[r.Semester]
			if !ok {
				w = &weighted{}
				bySem[r.Semester] = w
			}
			w.add(r, e.opts.FailPolicy)
		}

		sgpa := make(map[int]float64, len(bySem))
		for sem, w := range bySem {
			if isCurrent[sem] {
				continue
			}
			if v, ok := w.value(e.opts.Precision); ok {
				sgpa[sem] = v
			}
		}
		for sem, v := range previous[st.regNo].SGPABySemester {
			sgpa[sem] = v
		}

		cgpa, _ := total.value(e.opts.Precision)
		out = append(out, domain.StudentPerformance{
			RegistrationNumber: st.regNo,
			DepartmentCode:     st.dept,
			SGPABySemester:     sgpa,
			CGPA:               cgpa,
			Cumulative:         true,
			ArrearCount:        countArrears(st.results),
			SubjectResults:     st.results,
		})
	}

	e.phase = PhaseCumulative
	e.cumulative = out

	e.logger.InfoContext(ctx, "cumulative phase complete",
		slog.Int("students", len(out)),
		slog.Int("through_semester", latest))
	return out, nil
}

// gate validates set against the subjects in scope and returns its table
func (e *Engine) gate(ctx context.Context, scope []domain.StudentRecord, set CreditSet) (*credits.Table, error) {
	v := credits.NewValidator(set.Capabilities, e.logger)
	if err := v.Validate(ctx, records.SubjectCodes(scope), set.Entries); err != nil {
		return nil, err
	}
	return credits.NewTable(set.Entries, set.Capabilities), nil
}

type studentResults struct {
	regNo   string
	dept    string
	results []domain.SubjectResult
}

// grade resolves every record in scope, grouped per student in first-seen
// order. One unknown grade fails the whole scope.
func (e *Engine) grade(scope []domain.StudentRecord, table *credits.Table) ([]*studentResults, error) {
	var students []*studentResults
	byRegNo := make(map[string]*studentResults)

	for _, r := range scope {
		g, ok := e.opts.Scale.Lookup(r.Grade)
		if !ok {
			return nil, apperrors.NewGradeLookupError(r.Grade, r.RegistrationNumber, strings.TrimSpace(r.SubjectCode), r.Semester).
				WithContext("file", r.SourceFile).
				WithContext("row", r.SourceRow)
		}
		c, ok := table.Lookup(r.SubjectCode)
		if !ok {
			// the gate guarantees coverage
			return nil, fmt.Errorf("no credit for subject %s", r.SubjectCode)
		}

		st, ok := byRegNo[r.RegistrationNumber]
		if !ok {
			st = &studentResults{regNo: r.RegistrationNumber, dept: strings.TrimSpace(r.DepartmentCode)}
			byRegNo[r.RegistrationNumber] = st
			students = append(students, st)
		}

		points := g.Points
		if !g.Passing {
			points = 0
		}
		st.results = append(st.results, domain.SubjectResult{
			SubjectCode:       strings.TrimSpace(r.SubjectCode),
			Semester:          r.Semester,
			Grade:             g.Symbol,
			GradePoint:        points,
			CreditValue:       c.CreditValue,
			IsCurrentSemester: c.IsCurrentSemester,
			Passed:            g.Passing,
		})
	}

	for _, st := range students {
		sort.SliceStable(st.results, func(i, j int) bool {
			return st.results[i].Semester < st.results[j].Semester
		})
	}
	return students, nil
}

// resolveSemesters checks the requested semesters exist and returns them
// sorted; none requested means the highest semester present.
func resolveSemesters(recs []domain.StudentRecord, requested []int) ([]int, error) {
	present := make(map[int]bool)
	highest := 0
	for _, r := range recs {
		present[r.Semester] = true
		if r.Semester > highest {
			highest = r.Semester
		}
	}

	if len(requested) == 0 {
		return []int{highest}, nil
	}

	seen := make(map[int]bool, len(requested))
	out := make([]int, 0, len(requested))
	for _, s := range requested {
		if !present[s] {
			return nil, apperrors.NewAppError(apperrors.ErrTypeValidation,
				fmt.Sprintf("semester %d has no records", s), nil).WithContext("semester", s)
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Ints(out)
	return out, nil
}

func filterRecords(recs []domain.StudentRecord, keep func(domain.StudentRecord) bool) []domain.StudentRecord {
	var out []domain.StudentRecord
	for _, r := range recs {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
