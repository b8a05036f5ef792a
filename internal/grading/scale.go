package grading

import (
	"fmt"
	"strings"
)

// Grade is one entry of the grade table
type Grade struct {
	Symbol  string
	Points  float64
	Passing bool
}

// Scale maps grade symbols to grade points. Symbols compare trimmed and
// case-insensitively.
type Scale struct {
	grades map[string]Grade
	order  []string
}

// NewScale builds a scale, rejecting empty or repeated symbols
func NewScale(grades []Grade) (*Scale, error) {
	if len(grades) == 0 {
		return nil, fmt.Errorf("grade table is empty")
	}
	s := &Scale{grades: make(map[string]Grade, len(grades))}
	for _, g := range grades {
		sym := normalizeSymbol(g.Symbol)
		if sym == "" {
			return nil, fmt.Errorf("grade table has an entry without a symbol")
		}
		if _, dup := s.grades[sym]; dup {
			return nil, fmt.Errorf("grade table lists %q twice", sym)
		}
		if g.Points < 0 {
			return nil, fmt.Errorf("grade %q has negative points", sym)
		}
		g.Symbol = sym
		s.grades[sym] = g
		s.order = append(s.order, sym)
	}
	return s, nil
}

// DefaultGrades is the 10-point table used when none is configured
var DefaultGrades = []Grade{
	{"O", 10, true},
	{"A+", 9, true},
	{"A", 8, true},
	{"B+", 7, true},
	{"B", 6, true},
	{"C", 5, true},
	{"U", 0, false},
	{"RA", 0, false},
	{"SA", 0, false},
	{"AB", 0, false},
	{"W", 0, false},
}

// DefaultScale returns the built-in 10-point scale
func DefaultScale() *Scale {
	s, err := NewScale(DefaultGrades)
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup resolves a grade symbol
func (s *Scale) Lookup(symbol string) (Grade, bool) {
	g, ok := s.grades[normalizeSymbol(symbol)]
	return g, ok
}

// Grades returns the table in declaration order
func (s *Scale) Grades() []Grade {
	out := make([]Grade, len(s.order))
	for i, sym := range s.order {
		out[i] = s.grades[sym]
	}
	return out
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// FailPolicy decides how failing results enter a weighted average
type FailPolicy string

const (
	// FailPolicyExclude leaves failing subjects out of numerator and denominator
	FailPolicyExclude FailPolicy = "exclude"
	// FailPolicyZero counts failing subjects' credits with zero grade points
	FailPolicyZero FailPolicy = "zero"
)

// ParseFailPolicy parses a policy name; empty means exclude
func ParseFailPolicy(s string) (FailPolicy, error) {
	switch FailPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case FailPolicyExclude, "":
		return FailPolicyExclude, nil
	case FailPolicyZero:
		return FailPolicyZero, nil
	}
	return "", fmt.Errorf("unknown fail policy %q", s)
}
