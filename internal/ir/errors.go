package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes errors surfaced by cycles, triggers and managers.
type ErrorCode string

const (
	// ErrCodeValidation indicates a malformed definition or trigger URI.
	// Never retried; surfaced synchronously at construction.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeResource indicates a collaborator resource could not be acquired
	// (reader lock, reader operation define).
	ErrCodeResource ErrorCode = "RESOURCE"

	// ErrCodeImplementation indicates an unexpected collaborator failure.
	ErrCodeImplementation ErrorCode = "IMPLEMENTATION"

	// ErrCodeNoSuchName indicates a lookup by name found nothing.
	ErrCodeNoSuchName ErrorCode = "NO_SUCH_NAME"

	// ErrCodeDuplicateName indicates a define for a name already in use.
	ErrCodeDuplicateName ErrorCode = "DUPLICATE_NAME"

	// ErrCodeInUse indicates a resource cannot be removed while held.
	ErrCodeInUse ErrorCode = "IN_USE"
)

// Error is the typed error used across the module.
//
// Name and URI are optional context: the definition or reader name and the
// trigger/subscriber URI involved.
type Error struct {
	Code    ErrorCode
	Message string
	Name    string
	URI     string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Name != "" {
		msg += fmt.Sprintf(" (name=%s)", e.Name)
	}
	if e.URI != "" {
		msg += fmt.Sprintf(" (uri=%s)", e.URI)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps err with a code and message. If err already carries an
// *Error in its chain, that code is kept so a resource failure surfaced
// through several layers stays a resource failure.
func WrapError(code ErrorCode, message string, err error) *Error {
	var inner *Error
	if errors.As(err, &inner) {
		code = inner.Code
	}
	return &Error{Code: code, Message: message, Err: err}
}

// NewValidationError creates a validation error.
func NewValidationError(format string, args ...any) *Error {
	return Errorf(ErrCodeValidation, format, args...)
}

// NewURIError creates a validation error whose message embeds the offending uri.
func NewURIError(uri, reason string) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf("invalid trigger uri %q: %s", uri, reason),
		URI:     uri,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool { return CodeOf(err) == ErrCodeValidation }

// IsResource returns true if err is a resource error.
func IsResource(err error) bool { return CodeOf(err) == ErrCodeResource }

// IsNoSuchName returns true if err reports an unknown name.
func IsNoSuchName(err error) bool { return CodeOf(err) == ErrCodeNoSuchName }

// IsDuplicateName returns true if err reports a name collision.
func IsDuplicateName(err error) bool { return CodeOf(err) == ErrCodeDuplicateName }

// IsInUse returns true if err reports a held resource.
func IsInUse(err error) bool { return CodeOf(err) == ErrCodeInUse }
