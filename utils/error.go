package utils

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable machine-readable failure classification returned to
// API callers alongside the human message.
type ErrorKind string

const (
	ErrorKindValidation    ErrorKind = "VALIDATION"
	ErrorKindStateConflict ErrorKind = "STATE_CONFLICT"
	ErrorKindImmutable     ErrorKind = "IMMUTABLE"
	ErrorKindDuplicate     ErrorKind = "DUPLICATE_KEY"
	ErrorKindNotFound      ErrorKind = "NOT_FOUND"
)

type DomainError struct {
	Kind    ErrorKind
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

var ErrorRecordNotFound = &DomainError{Kind: ErrorKindNotFound, Message: "record not found"}

func NewValidationError(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: ErrorKindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewStateConflictError names the status the action required vs the status found,
// so a failed guard is always diagnosable from the message alone.
func NewStateConflictError(action string, expected string, actual string) *DomainError {
	return &DomainError{
		Kind:    ErrorKindStateConflict,
		Message: fmt.Sprintf("cannot %s: expected status %s, current status is %s", action, expected, actual),
	}
}

func NewImmutableError(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: ErrorKindImmutable, Message: fmt.Sprintf(format, args...)}
}

func NewDuplicateError(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: ErrorKindDuplicate, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: ErrorKindNotFound, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the classification of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
