package content

import (
	"errors"
	"fmt"

	"chariotek.org/internal/schema"
)

// Code classifies facade failures for callers across the public boundary.
type Code string

const (
	CodeValidationError         Code = "VALIDATION_ERROR"
	CodeDangerousContent        Code = "DANGEROUS_CONTENT"
	CodeVersionConflict         Code = "VERSION_CONFLICT"
	CodeVersionNotFound         Code = "VERSION_NOT_FOUND"
	CodeNotFound                Code = "NOT_FOUND"
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"
	CodeNotReady                Code = "NOT_READY"
	CodeInternal                Code = "INTERNAL"
)

// Error carries the taxonomy code plus optional detail: field messages for
// validation failures, version numbers for lost optimistic locks.
type Error struct {
	Code    Code                     `json:"errorCode"`
	Message string                   `json:"message"`
	Fields  []schema.ValidationError `json:"fields,omitempty"`

	ExpectedVersion int `json:"expectedVersion,omitempty"`
	ActualVersion   int `json:"actualVersion,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the taxonomy code from any error returned by the facade.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// OperationResult is the structured outcome handed across the public
// boundary instead of a bare error.
type OperationResult struct {
	Success   bool                     `json:"success"`
	ErrorCode Code                     `json:"errorCode,omitempty"`
	Message   string                   `json:"message,omitempty"`
	Fields    []schema.ValidationError `json:"fields,omitempty"`
}

// ResultOf translates an error (or nil) into an OperationResult.
func ResultOf(err error) OperationResult {
	if err == nil {
		return OperationResult{Success: true}
	}
	var e *Error
	if errors.As(err, &e) {
		return OperationResult{ErrorCode: e.Code, Message: e.Message, Fields: e.Fields}
	}
	return OperationResult{ErrorCode: CodeInternal, Message: err.Error()}
}
