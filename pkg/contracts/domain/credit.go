package domain

// SubjectCredit is the caller-supplied credit assignment for one subject.
type SubjectCredit struct {
	SubjectCode       string  `json:"subject_code" yaml:"subject_code" validate:"required"`
	CreditValue       float64 `json:"credit_value" yaml:"credit_value" validate:"gte=1,lte=10"`
	SubjectName       string  `json:"subject_name,omitempty" yaml:"subject_name"`
	FacultyName       string  `json:"faculty_name,omitempty" yaml:"faculty_name"`
	IsCurrentSemester bool    `json:"is_current_semester" yaml:"is_current_semester"`
}

// CreditCapabilities selects which optional parts of a credit entry are in use.
// The zero value is the basic variant: code and credit only, every subject
// counted as current-semester.
type CreditCapabilities struct {
	WithNames      bool `json:"with_names" yaml:"with_names"`
	WithArrearFlag bool `json:"with_arrear_flag" yaml:"with_arrear_flag"`
}

var (
	CapabilitiesBasic     = CreditCapabilities{}
	CapabilitiesWithNames = CreditCapabilities{WithNames: true}
	CapabilitiesFull      = CreditCapabilities{WithNames: true, WithArrearFlag: true}
)
