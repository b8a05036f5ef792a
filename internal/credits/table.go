package credits

import (
	"datapulse/internal/records"
	"datapulse/pkg/contracts/domain"
)

// Table resolves subject codes to their validated credit entry
type Table struct {
	entries map[string]domain.SubjectCredit
}

// NewTable indexes credits by normalized subject code. Without the arrear
// flag capability every subject counts as current-semester.
func NewTable(credits []domain.SubjectCredit, caps domain.CreditCapabilities) *Table {
	t := &Table{entries: make(map[string]domain.SubjectCredit, len(credits))}
	for _, c := range credits {
		if !caps.WithArrearFlag {
			c.IsCurrentSemester = true
		}
		t.entries[records.NormalizeCode(c.SubjectCode)] = c
	}
	return t
}

// Lookup returns the credit entry for a subject code
func (t *Table) Lookup(code string) (domain.SubjectCredit, bool) {
	if t == nil {
		return domain.SubjectCredit{}, false
	}
	c, ok := t.entries[records.NormalizeCode(code)]
	return c, ok
}

// Len returns the number of subjects in the table
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
