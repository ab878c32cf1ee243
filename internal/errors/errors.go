// Package errors provides structured error types for the Tablo engine.
// All errors include a category, code, and message for consistent
// handling across components. The categories form a closed taxonomy:
// definition errors (the schema itself is wrong), structural errors
// (raw input data is malformed), validation errors (data does not
// match an otherwise-correct schema), usage errors (API misuse), plus
// storage and internal categories for the persistence layer.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by fault origin.
type ErrorCategory string

const (
	ErrCategoryDefinition ErrorCategory = "DEFINITION"
	ErrCategoryStructural ErrorCategory = "STRUCTURAL"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryUsage      ErrorCategory = "USAGE"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Definition codes
	CodeDuplicateColumn = "DUPLICATE_COLUMN"
	CodeInvalidType     = "INVALID_TYPE"
	CodeInvalidDefault  = "INVALID_DEFAULT"

	// Structural codes
	CodeMixedKeys          = "MIXED_KEYS"
	CodeInvalidKey         = "INVALID_KEY"
	CodeNonScalarValue     = "NON_SCALAR_VALUE"
	CodeInconsistentColumn = "INCONSISTENT_COLUMN"

	// Validation codes
	CodeNullViolation = "NULL_VIOLATION"
	CodeTypeMismatch  = "TYPE_MISMATCH"
	CodeRowShape      = "ROW_SHAPE"

	// Usage codes
	CodeUndefinedColumn      = "UNDEFINED_COLUMN"
	CodeImmutableTable       = "IMMUTABLE_TABLE"
	CodeWrongKeyType         = "WRONG_KEY_TYPE"
	CodeDuplicateKey         = "DUPLICATE_KEY"
	CodeDuplicateValue       = "DUPLICATE_VALUE"
	CodeUnindexableType      = "UNINDEXABLE_TYPE"
	CodeNullableIndex        = "NULLABLE_INDEX"
	CodeUnknownOperator      = "UNKNOWN_OPERATOR"
	CodeRowNotFound          = "ROW_NOT_FOUND"
	CodeKeyColumnNotOneToOne = "KEY_COLUMN_NOT_ONE_TO_ONE"

	// Storage codes
	CodeSnapshotNotFound = "SNAPSHOT_NOT_FOUND"
	CodeUploadFailed     = "UPLOAD_FAILED"
	CodeDownloadFailed   = "DOWNLOAD_FAILED"
	CodeDeleteFailed     = "DELETE_FAILED"
	CodeCorruptSnapshot  = "CORRUPT_SNAPSHOT"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// TabloError is the structured error type used throughout the engine.
type TabloError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *TabloError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *TabloError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *TabloError) Is(target error) bool {
	var t *TabloError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new TabloError.
func New(category ErrorCategory, code, message string) *TabloError {
	return &TabloError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Newf creates a new TabloError with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...interface{}) *TabloError {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap creates a new TabloError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *TabloError {
	return &TabloError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *TabloError) WithDetails(details map[string]interface{}) *TabloError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a TabloError.
func GetCategory(err error) ErrorCategory {
	var te *TabloError
	if errors.As(err, &te) {
		return te.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a TabloError.
func GetCode(err error) string {
	var te *TabloError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// Convenience constructors for common errors.

func NewDefinitionError(code, format string, args ...interface{}) *TabloError {
	return Newf(ErrCategoryDefinition, code, format, args...)
}

func NewStructuralError(code, format string, args ...interface{}) *TabloError {
	return Newf(ErrCategoryStructural, code, format, args...)
}

func NewValidationError(code, format string, args ...interface{}) *TabloError {
	return Newf(ErrCategoryValidation, code, format, args...)
}

func NewUsageError(code, format string, args ...interface{}) *TabloError {
	return Newf(ErrCategoryUsage, code, format, args...)
}

func NewStorageError(code, message string, cause error) *TabloError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *TabloError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
