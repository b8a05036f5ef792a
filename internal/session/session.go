// Package session holds the state of one analysis: the merged record set,
// the credit assignments and the latest engine results.
//
// Every mutating operation runs to completion under an atomic
// is-processing flag; an overlapping call fails with a BUSY error instead
// of waiting. Reads never block: they see the last committed snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"datapulse/internal/credits"
	"datapulse/internal/department"
	apperrors "datapulse/internal/errors"
	"datapulse/internal/grading"
	"datapulse/internal/infrastructure"
	"datapulse/internal/ingest"
	"datapulse/internal/records"
	"datapulse/internal/report"
	"datapulse/pkg/contracts/domain"
)

// Options configures the components a session owns
type Options struct {
	Ingest        ingest.Options
	Grading       grading.Options
	TopPerformers int
}

// IngestResult summarizes an accepted batch
type IngestResult struct {
	Files       int                      `json:"files"`
	Rows        int                      `json:"rows"`
	Records     int                      `json:"records"`
	Departments []domain.DepartmentStats `json:"departments"`
	Subjects    []string                 `json:"subjects"`
}

// snapshot is one committed session state. It is never mutated after it
// has been stored.
type snapshot struct {
	records     *records.Set
	departments []domain.DepartmentStats
	subjects    []string

	currentCredits    *grading.CreditSet
	currentSemesters  []int
	cumulativeCredits *grading.CreditSet

	phase        grading.Phase
	performances []domain.StudentPerformance
}

// Session is one analysis
type Session struct {
	ID        string
	CreatedAt time.Time

	parser     *ingest.Parser
	normalizer *records.Normalizer
	engine     *grading.Engine
	aggregator *report.Aggregator
	telemetry  *infrastructure.Telemetry
	logger     *slog.Logger

	busy  atomic.Bool
	state atomic.Pointer[snapshot]
}

// New creates an empty session. A nil telemetry records nothing.
func New(id string, opts Options, telemetry *infrastructure.Telemetry, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if telemetry == nil {
		telemetry = infrastructure.NewNoopTelemetry()
	}
	logger = logger.With(slog.String("session_id", id))

	s := &Session{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		parser:     ingest.NewParser(opts.Ingest, logger),
		normalizer: records.NewNormalizer(logger),
		engine:     grading.NewEngine(opts.Grading, logger),
		aggregator: report.NewAggregator(opts.TopPerformers, logger),
		telemetry:  telemetry,
		logger:     logger.With(slog.String("component", "session")),
	}
	s.state.Store(&snapshot{records: records.NewSet()})
	return s
}

func (s *Session) current() *snapshot {
	return s.state.Load()
}

// begin claims the is-processing flag
func (s *Session) begin() error {
	if !s.busy.CompareAndSwap(false, true) {
		return apperrors.NewBusyError(s.ID)
	}
	return nil
}

func (s *Session) end() {
	s.busy.Store(false)
}

// Busy reports whether an operation is in flight
func (s *Session) Busy() bool {
	return s.busy.Load()
}

func (s *Session) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("session.id", s.ID))
	return s.telemetry.Tracer.Start(ctx, "session."+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))
}

// Ingest parses a batch of files and merges it into the record set. Any
// engine result is discarded. A failed batch changes nothing.
func (s *Session) Ingest(ctx context.Context, sources []ingest.Source) (*IngestResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	ctx, span := s.startSpan(ctx, "ingest", attribute.Int("files", len(sources)))
	defer span.End()

	rows, err := s.parser.Parse(ctx, sources)
	if err != nil {
		s.telemetry.Metrics.RecordIngest(ctx, len(sources), 0, err)
		infrastructure.RecordError(ctx, err)
		s.logger.ErrorContext(ctx, "ingest rejected",
			slog.Int("files", len(sources)),
			slog.String("error", err.Error()))
		return nil, err
	}

	prev := s.current()
	merged := prev.records.Merge(s.normalizer.Normalize(ctx, rows))
	next := &snapshot{
		records:           merged,
		departments:       department.Index(merged.Records()),
		subjects:          merged.SubjectCodes(),
		currentCredits:    prev.currentCredits,
		currentSemesters:  prev.currentSemesters,
		cumulativeCredits: prev.cumulativeCredits,
	}
	s.engine.Invalidate()
	s.state.Store(next)

	s.telemetry.Metrics.RecordIngest(ctx, len(sources), len(rows), nil)
	span.SetAttributes(attribute.Int("rows", len(rows)), attribute.Int("records", merged.Len()))
	s.logger.InfoContext(ctx, "ingest complete",
		slog.Int("files", len(sources)),
		slog.Int("rows", len(rows)),
		slog.Int("records", merged.Len()),
		slog.Int("departments", len(next.departments)))

	return &IngestResult{
		Files:       len(sources),
		Rows:        len(rows),
		Records:     merged.Len(),
		Departments: next.departments,
		Subjects:    next.subjects,
	}, nil
}

// Records returns the merged record set
func (s *Session) Records() []domain.StudentRecord {
	return s.current().records.Records()
}

// DepartmentRecords returns the records of one department; an empty code
// returns every record
func (s *Session) DepartmentRecords(code string) []domain.StudentRecord {
	return department.Filter(s.Records(), code)
}

// Departments returns the departments of the record set, first-seen order
func (s *Session) Departments() []domain.DepartmentStats {
	return s.current().departments
}

// Subjects returns the canonical subject codes, first-seen order
func (s *Session) Subjects() []string {
	return s.current().subjects
}

// Semesters returns the semesters present in the record set
func (s *Session) Semesters() []int {
	return s.current().records.Semesters()
}

// Phase returns the latest completed engine phase
func (s *Session) Phase() grading.Phase {
	return s.current().phase
}

// Performances returns the latest engine results
func (s *Session) Performances() []domain.StudentPerformance {
	return s.current().performances
}

// SetCurrentCredits validates and stores the credit set for the
// current-semester phase. It is checked against the subjects of the given
// semesters, or of the latest semester when none are given. Every computed
// result is discarded.
func (s *Session) SetCurrentCredits(ctx context.Context, set grading.CreditSet, semesters []int) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	prev := s.current()
	present := make(map[int]bool)
	for _, sem := range prev.records.Semesters() {
		present[sem] = true
	}
	for _, sem := range semesters {
		if !present[sem] {
			return apperrors.NewAppError(apperrors.ErrTypeValidation,
				fmt.Sprintf("semester %d has no records", sem), nil).WithContext("semester", sem)
		}
	}
	semesters = designate(prev.records, semesters)
	scope := inSemesters(prev.records.Records(), semesters)
	if err := s.checkCredits(ctx, scope, set); err != nil {
		return err
	}

	next := *prev
	next.currentCredits = &set
	next.currentSemesters = semesters
	next.phase = grading.PhaseIdle
	next.performances = nil
	s.engine.Invalidate()
	s.state.Store(&next)
	return nil
}

// SetCumulativeCredits validates and stores the credit set for the
// cumulative phase against every subject up to the latest current semester.
// A cumulative result is discarded; the current one is kept.
func (s *Session) SetCumulativeCredits(ctx context.Context, set grading.CreditSet) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	prev := s.current()
	semesters := designate(prev.records, prev.currentSemesters)
	scope := upTo(prev.records.Records(), latest(semesters))
	if err := s.checkCredits(ctx, scope, set); err != nil {
		return err
	}

	next := *prev
	next.cumulativeCredits = &set
	s.engine.DropCumulative()
	next.phase, next.performances = s.engine.Results()
	s.state.Store(&next)
	return nil
}

func (s *Session) checkCredits(ctx context.Context, scope []domain.StudentRecord, set grading.CreditSet) error {
	v := credits.NewValidator(set.Capabilities, s.logger)
	if err := v.Validate(ctx, records.SubjectCodes(scope), set.Entries); err != nil {
		s.recordValidation(ctx, err)
		return err
	}
	return nil
}

func (s *Session) recordValidation(ctx context.Context, err error) {
	var verrs *apperrors.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs.Errors {
			s.telemetry.Metrics.RecordValidationFailure(ctx, string(e.Code))
		}
	}
}

// ComputeCurrent runs the current-semester phase with the stored credit
// set. Semesters default to those given with the credits, then to the
// latest semester.
func (s *Session) ComputeCurrent(ctx context.Context, semesters []int) ([]domain.StudentPerformance, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	prev := s.current()
	if len(semesters) == 0 {
		semesters = prev.currentSemesters
	}

	ctx, span := s.startSpan(ctx, "compute_current")
	defer span.End()
	started := time.Now()

	perfs, err := s.engine.ComputeCurrent(ctx, prev.records.Records(), creditsOrEmpty(prev.currentCredits), semesters)
	s.telemetry.Metrics.RecordPhase(ctx, grading.PhaseCurrent.String(), time.Since(started), err)
	if err != nil {
		s.recordValidation(ctx, err)
		infrastructure.RecordError(ctx, err)
		return nil, err
	}

	next := *prev
	next.phase = grading.PhaseCurrent
	next.performances = perfs
	next.currentSemesters = s.engine.CurrentSemesters()
	s.state.Store(&next)

	span.SetAttributes(attribute.Int("students", len(perfs)))
	return perfs, nil
}

// ComputeCumulative runs the cumulative phase with the stored credit set
func (s *Session) ComputeCumulative(ctx context.Context) ([]domain.StudentPerformance, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	prev := s.current()

	ctx, span := s.startSpan(ctx, "compute_cumulative")
	defer span.End()
	started := time.Now()

	perfs, err := s.engine.ComputeCumulative(ctx, creditsOrEmpty(prev.cumulativeCredits))
	s.telemetry.Metrics.RecordPhase(ctx, grading.PhaseCumulative.String(), time.Since(started), err)
	if err != nil {
		s.recordValidation(ctx, err)
		infrastructure.RecordError(ctx, err)
		return nil, err
	}

	next := *prev
	next.phase = grading.PhaseCumulative
	next.performances = perfs
	s.state.Store(&next)

	span.SetAttributes(attribute.Int("students", len(perfs)))
	return perfs, nil
}

// Report aggregates the latest results, optionally for one department
func (s *Session) Report(ctx context.Context, dept string) (*domain.PerformanceReport, error) {
	snap := s.current()

	var phase domain.ReportPhase
	var set *grading.CreditSet
	switch snap.phase {
	case grading.PhaseCurrent:
		phase, set = domain.ReportPhaseCurrent, snap.currentCredits
	case grading.PhaseCumulative:
		phase, set = domain.ReportPhaseCumulative, snap.cumulativeCredits
	default:
		return nil, apperrors.NewPhaseOrderError("no results yet: run the current-semester phase first")
	}
	if dept != "" {
		if _, ok := department.Lookup(snap.departments, dept); !ok {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("department %q", dept))
		}
	}

	return s.aggregator.Aggregate(ctx, report.Input{
		Phase:        phase,
		Department:   dept,
		Performances: snap.performances,
		Departments:  snap.departments,
		Credits:      creditsOrEmpty(set).Entries,
	}), nil
}

// Reset drops records, credits and results
func (s *Session) Reset(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	s.engine.Invalidate()
	s.state.Store(&snapshot{records: records.NewSet()})
	s.logger.InfoContext(ctx, "session reset")
	return nil
}

func creditsOrEmpty(set *grading.CreditSet) grading.CreditSet {
	if set == nil {
		return grading.CreditSet{}
	}
	return *set
}

// designate returns semesters, or the latest semester of recs when empty
func designate(recs *records.Set, semesters []int) []int {
	if len(semesters) > 0 {
		return semesters
	}
	all := recs.Semesters()
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1:]
}

func latest(semesters []int) int {
	hi := 0
	for _, s := range semesters {
		if s > hi {
			hi = s
		}
	}
	return hi
}

func inSemesters(recs []domain.StudentRecord, semesters []int) []domain.StudentRecord {
	want := make(map[int]bool, len(semesters))
	for _, s := range semesters {
		want[s] = true
	}
	var out []domain.StudentRecord
	for _, r := range recs {
		if want[r.Semester] {
			out = append(out, r)
		}
	}
	return out
}

func upTo(recs []domain.StudentRecord, semester int) []domain.StudentRecord {
	var out []domain.StudentRecord
	for _, r := range recs {
		if r.Semester <= semester {
			out = append(out, r)
		}
	}
	return out
}
