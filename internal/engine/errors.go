package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/txgraph/internal/ir"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeNotFound: the requested identity is absent from storage.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeObjectInvalid: the record is invalid in this transaction.
	ErrCodeObjectInvalid ErrorCode = "OBJECT_INVALID"
	// ErrCodeObjectDeleted: the record is deleted in this transaction.
	ErrCodeObjectDeleted ErrorCode = "OBJECT_DELETED"
	// ErrCodeReadOnly: the transaction has an active sub-transaction.
	ErrCodeReadOnly ErrorCode = "READ_ONLY"
	// ErrCodeDiscarded: the transaction was discarded.
	ErrCodeDiscarded ErrorCode = "DISCARDED"
	// ErrCodePropertyNotFound: the class declares no such property.
	ErrCodePropertyNotFound ErrorCode = "PROPERTY_NOT_FOUND"
	// ErrCodeRelationNotFound: the class declares no such relation.
	ErrCodeRelationNotFound ErrorCode = "RELATION_NOT_FOUND"
	// ErrCodeMandatoryRelationNotSet: a mandatory relation is empty at commit.
	ErrCodeMandatoryRelationNotSet ErrorCode = "MANDATORY_RELATION_NOT_SET"
	// ErrCodePropertyRequiredNotSet: a required property is null at commit.
	ErrCodePropertyRequiredNotSet ErrorCode = "PROPERTY_REQUIRED_NOT_SET"
	// ErrCodePropertyValueTooLong: a string exceeds its max length at commit.
	ErrCodePropertyValueTooLong ErrorCode = "PROPERTY_VALUE_TOO_LONG"
	// ErrCodeConcurrency: storage revisions moved since load.
	ErrCodeConcurrency ErrorCode = "CONCURRENCY"
	// ErrCodeRoundsExceeded: commit or rollback rounds did not converge.
	ErrCodeRoundsExceeded ErrorCode = "ROUNDS_EXCEEDED"
	// ErrCodeVetoed: an observer rejected the operation.
	ErrCodeVetoed ErrorCode = "VETOED"
	// ErrCodeInvalidOperation: the call is not valid in the current state.
	ErrCodeInvalidOperation ErrorCode = "INVALID_OPERATION"
)

// Error is the structured error returned by engine operations.
type Error struct {
	Code    ErrorCode
	Message string

	// Entity is the offending record, if any.
	Entity ir.EntityID

	// Name is the offending property or relation, if any.
	Name string

	// Cause is the wrapped error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	switch {
	case !e.Entity.IsNull() && e.Name != "":
		fmt.Fprintf(&b, " (%s.%s)", e.Entity, e.Name)
	case !e.Entity.IsNull():
		fmt.Fprintf(&b, " (%s)", e.Entity)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.Cause }

func newError(code ErrorCode, id ir.EntityID, format string, args ...any) *Error {
	return &Error{Code: code, Entity: id, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var re *RoundsExceededError
	if errors.As(err, &re) {
		return ErrCodeRoundsExceeded
	}
	return ""
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsObjectInvalid reports whether err is an OBJECT_INVALID error.
func IsObjectInvalid(err error) bool { return CodeOf(err) == ErrCodeObjectInvalid }

// IsReadOnly reports whether err is a READ_ONLY error.
func IsReadOnly(err error) bool { return CodeOf(err) == ErrCodeReadOnly }

// IsDiscarded reports whether err is a DISCARDED error.
func IsDiscarded(err error) bool { return CodeOf(err) == ErrCodeDiscarded }

// IsConcurrency reports whether err is a CONCURRENCY error.
func IsConcurrency(err error) bool { return CodeOf(err) == ErrCodeConcurrency }

// IsValidationError reports whether err came from commit validation.
func IsValidationError(err error) bool {
	var vf *ValidationFailedError
	if errors.As(err, &vf) {
		return true
	}
	switch CodeOf(err) {
	case ErrCodeMandatoryRelationNotSet, ErrCodePropertyRequiredNotSet, ErrCodePropertyValueTooLong:
		return true
	}
	return false
}

// ValidationFailedError aggregates every violation found by one commit
// validation pass. errors.As to *Error yields the first violation.
type ValidationFailedError struct {
	Violations []*Error
}

// Error implements the error interface.
func (e *ValidationFailedError) Error() string {
	if len(e.Violations) == 1 {
		return "validation failed: " + e.Violations[0].Error()
	}
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("validation failed (%d violations): %s", len(e.Violations), strings.Join(msgs, "; "))
}

// Unwrap exposes the violations to errors.Is and errors.As.
func (e *ValidationFailedError) Unwrap() []error {
	out := make([]error, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v
	}
	return out
}

// vetoed wraps an observer error. Engine errors pass through unchanged.
func vetoed(kind EventKind, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	var vf *ValidationFailedError
	if errors.As(err, &vf) {
		return err
	}
	return &Error{Code: ErrCodeVetoed, Message: kind.String() + " rejected", Cause: err}
}
