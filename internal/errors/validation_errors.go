package errors

import (
	"fmt"
	"strings"
)

// ValidationError is one problem found while validating caller input
type ValidationError struct {
	Code     ErrorType `json:"code"`
	Field    string    `json:"field,omitempty"`
	Message  string    `json:"message"`
	Subjects []string  `json:"subjects,omitempty"`
}

// ValidationErrors collects every problem so callers can show them at once
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Error implements the error interface
func (v *ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		msgs = append(msgs, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// Is matches the AppError sentinel of every code present in the list.
func (v *ValidationErrors) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return v.Has(t.Type)
}

// Add appends a problem
func (v *ValidationErrors) Add(code ErrorType, field, message string, subjects ...string) {
	v.Errors = append(v.Errors, ValidationError{
		Code:     code,
		Field:    field,
		Message:  message,
		Subjects: subjects,
	})
}

// Has reports whether any problem carries code
func (v *ValidationErrors) Has(code ErrorType) bool {
	_, ok := v.Find(code)
	return ok
}

// Find returns the first problem carrying code
func (v *ValidationErrors) Find(code ErrorType) (ValidationError, bool) {
	for _, e := range v.Errors {
		if e.Code == code {
			return e, true
		}
	}
	return ValidationError{}, false
}

// Len returns the number of problems
func (v *ValidationErrors) Len() int {
	return len(v.Errors)
}

// OrNil returns v as an error, or a nil interface when v is empty.
func (v *ValidationErrors) OrNil() error {
	if v == nil || len(v.Errors) == 0 {
		return nil
	}
	return v
}
