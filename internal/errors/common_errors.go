package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Ingestion, fatal for the whole batch
	ErrTypeFileFormat    ErrorType = "FILE_FORMAT"
	ErrTypeColumnMissing ErrorType = "COLUMN_MISSING"
	ErrTypeBatchLimit    ErrorType = "BATCH_LIMIT"

	// Credit assignment, recoverable
	ErrTypeCreditValidation     ErrorType = "CREDIT_VALIDATION"
	ErrTypeDuplicateSubject     ErrorType = "DUPLICATE_SUBJECT"
	ErrTypeIncompleteAssignment ErrorType = "INCOMPLETE_ASSIGNMENT"

	// Computation
	ErrTypeGradeLookup ErrorType = "GRADE_LOOKUP"
	ErrTypePhaseOrder  ErrorType = "PHASE_ORDER"

	ErrTypeBusy       ErrorType = "BUSY"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeConfig     ErrorType = "CONFIG"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError of the same type, so the sentinels below work
// with errors.Is regardless of message or context.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Type == e.Type
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Sentinels for errors.Is
var (
	ErrFileFormat           = &AppError{Type: ErrTypeFileFormat, Message: "unsupported spreadsheet file"}
	ErrColumnMissing        = &AppError{Type: ErrTypeColumnMissing, Message: "required column missing"}
	ErrBatchLimit           = &AppError{Type: ErrTypeBatchLimit, Message: "too many files in batch"}
	ErrCreditValidation     = &AppError{Type: ErrTypeCreditValidation, Message: "credit value out of range"}
	ErrDuplicateSubject     = &AppError{Type: ErrTypeDuplicateSubject, Message: "duplicate subject in credit set"}
	ErrIncompleteAssignment = &AppError{Type: ErrTypeIncompleteAssignment, Message: "subjects without credit"}
	ErrGradeLookup          = &AppError{Type: ErrTypeGradeLookup, Message: "unknown grade symbol"}
	ErrPhaseOrder           = &AppError{Type: ErrTypePhaseOrder, Message: "phase invoked out of order"}
	ErrBusy                 = &AppError{Type: ErrTypeBusy, Message: "session is processing"}
	ErrNotFound             = &AppError{Type: ErrTypeNotFound, Message: "not found"}
	ErrConfig               = &AppError{Type: ErrTypeConfig, Message: "invalid configuration"}
)

// TypeOf returns the ErrorType carried by err, or "" when err is not typed.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	var verrs *ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs.Errors) > 0 {
		return verrs.Errors[0].Code
	}
	return ""
}

// NewFileFormatError reports a file that is not a readable spreadsheet
// or whose content breaks the row contract.
func NewFileFormatError(file, reason string, cause error) *AppError {
	return NewAppError(ErrTypeFileFormat, fmt.Sprintf("%s: %s", file, reason), cause).
		WithContext("file", file)
}

// NewColumnMissingError lists the required columns absent from a file
func NewColumnMissingError(file string, missing []string) *AppError {
	return NewAppError(ErrTypeColumnMissing,
		fmt.Sprintf("%s: missing required column(s) %s", file, strings.Join(missing, ", ")), nil).
		WithContext("file", file).
		WithContext("columns", missing)
}

// NewBatchLimitError reports a batch outside the accepted file count
func NewBatchLimitError(count, limit int) *AppError {
	return NewAppError(ErrTypeBatchLimit,
		fmt.Sprintf("batch has %d file(s), accepted range is 1..%d", count, limit), nil).
		WithContext("count", count).
		WithContext("limit", limit)
}

// NewGradeLookupError reports a grade symbol absent from the grade table
func NewGradeLookupError(grade, registrationNumber, subjectCode string, semester int) *AppError {
	return NewAppError(ErrTypeGradeLookup,
		fmt.Sprintf("grade %q of %s in %s (semester %d) is not in the grade table",
			grade, registrationNumber, subjectCode, semester), nil).
		WithContext("grade", grade).
		WithContext("registration_number", registrationNumber).
		WithContext("subject_code", subjectCode).
		WithContext("semester", semester)
}

// NewPhaseOrderError reports a phase requested before its prerequisite
func NewPhaseOrderError(message string) *AppError {
	return NewAppError(ErrTypePhaseOrder, message, nil)
}

// NewBusyError rejects an action while another one is in flight
func NewBusyError(sessionID string) *AppError {
	return NewAppError(ErrTypeBusy, "another action is still processing", nil).
		WithContext("session_id", sessionID)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
