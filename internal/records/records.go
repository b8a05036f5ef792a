// Package records normalizes raw spreadsheet rows into a keyed student
// record set.
package records

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"datapulse/internal/ingest"
	"datapulse/pkg/contracts/domain"
)

// NormalizeCode is the comparison form of subject and department codes
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Key identifies a record. Two rows with the same key describe the same
// result and the later one wins.
type Key struct {
	RegistrationNumber string
	Semester           int
	SubjectCode        string
}

// KeyOf returns the record's key
func KeyOf(r domain.StudentRecord) Key {
	return Key{
		RegistrationNumber: strings.TrimSpace(r.RegistrationNumber),
		Semester:           r.Semester,
		SubjectCode:        NormalizeCode(r.SubjectCode),
	}
}

// Set is an ordered, deduplicated record collection. A Set is never
// modified after it is returned; Merge builds a new one.
type Set struct {
	records []domain.StudentRecord
	index   map[Key]int
}

// NewSet returns an empty set
func NewSet() *Set {
	return &Set{index: make(map[Key]int)}
}

// FromRecords builds a set from records, applying the later-wins rule
func FromRecords(recs []domain.StudentRecord) *Set {
	s := NewSet()
	for _, r := range recs {
		s.put(r)
	}
	return s
}

// put stores r, overwriting an existing record with the same key in place.
// It reports whether r replaced one.
func (s *Set) put(r domain.StudentRecord) bool {
	k := KeyOf(r)
	if i, ok := s.index[k]; ok {
		s.records[i] = r
		return true
	}
	s.index[k] = len(s.records)
	s.records = append(s.records, r)
	return false
}

// Merge returns a new set holding s followed by other, later wins
func (s *Set) Merge(other *Set) *Set {
	merged := &Set{
		records: make([]domain.StudentRecord, len(s.records), len(s.records)+other.Len()),
		index:   make(map[Key]int, len(s.index)+other.Len()),
	}
	copy(merged.records, s.records)
	for k, v := range s.index {
		merged.index[k] = v
	}
	if other != nil {
		for _, r := range other.records {
			merged.put(r)
		}
	}
	return merged
}

// Len returns the number of records
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Records returns a copy of the records in set order
func (s *Set) Records() []domain.StudentRecord {
	if s == nil {
		return nil
	}
	out := make([]domain.StudentRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Lookup returns the record stored under k
func (s *Set) Lookup(k Key) (domain.StudentRecord, bool) {
	i, ok := s.index[k]
	if !ok {
		return domain.StudentRecord{}, false
	}
	return s.records[i], true
}

// SubjectCodes returns the distinct subject codes in first-seen order,
// using the display form of the first record that carried each code.
func (s *Set) SubjectCodes() []string {
	return SubjectCodes(s.Records())
}

// Semesters returns the distinct semesters in ascending order
func (s *Set) Semesters() []int {
	seen := make(map[int]bool)
	var sems []int
	for _, r := range s.Records() {
		if !seen[r.Semester] {
			seen[r.Semester] = true
			sems = append(sems, r.Semester)
		}
	}
	sort.Ints(sems)
	return sems
}

// SubjectCodes lists distinct subject codes of recs in first-seen order
func SubjectCodes(recs []domain.StudentRecord) []string {
	seen := make(map[string]bool)
	var codes []string
	for _, r := range recs {
		norm := NormalizeCode(r.SubjectCode)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		codes = append(codes, strings.TrimSpace(r.SubjectCode))
	}
	return codes
}

// Normalizer converts raw rows into record sets
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a normalizer
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger.With(slog.String("component", "normalizer"))}
}

// Normalize converts rows to records. Duplicate keys keep the position of
// their first occurrence and the values of their last.
func (n *Normalizer) Normalize(ctx context.Context, rows []ingest.RawRow) *Set {
	s := NewSet()
	duplicates := 0
	for _, row := range rows {
		if s.put(toRecord(row)) {
			duplicates++
		}
	}

	n.logger.InfoContext(ctx, "records normalized",
		slog.Int("rows", len(rows)),
		slog.Int("records", s.Len()),
		slog.Int("duplicates", duplicates))
	return s
}

func toRecord(row ingest.RawRow) domain.StudentRecord {
	return domain.StudentRecord{
		RegistrationNumber: strings.TrimSpace(row.RegistrationNumber),
		Semester:           row.Semester,
		DepartmentCode:     row.DepartmentCode,
		SubjectCode:        row.SubjectCode,
		Grade:              strings.TrimSpace(row.Grade),
		SourceFile:         row.File,
		SourceRow:          row.Row,
	}
}
