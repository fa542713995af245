// Package errors defines the harness error taxonomy used throughout the
// integrity tools.
package errors

import "fmt"

// Error is a classified harness failure with a machine-readable code, a
// human-readable message, and whether it aborts the surrounding run.
type Error struct {
	// Code is the taxonomy code (e.g., "InvocationFailure", "ContentMismatch").
	Code string
	// Message is a human-readable description of the error class.
	Message string
	// Fatal marks configuration and usage errors that stop a run before or
	// instead of partial execution.
	Fatal bool
	// Detail carries the instance-specific context (key, step, offsets).
	Detail string
}

// Error implements the error interface for Error.
func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Detail)
}

// Is reports whether target is an *Error with the same code, so that copies
// produced by WithDetail match the predefined values under errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy of the Error carrying the formatted detail.
func (e *Error) WithDetail(format string, args ...any) *Error {
	cp := *e
	cp.Detail = fmt.Sprintf(format, args...)
	return &cp
}

// Predefined harness errors.
var (
	// ErrInvocationFailure is returned when the storage invoker reports a
	// non-success status where success was required.
	ErrInvocationFailure = &Error{
		Code:    "InvocationFailure",
		Message: "storage operation failed",
	}

	// ErrInvocationTimeout is returned when an invocation exceeds the
	// configured per-call timeout.
	ErrInvocationTimeout = &Error{
		Code:    "InvocationTimeout",
		Message: "storage operation timed out",
	}

	// ErrUnexpectedSuccess is returned when an operation expected to fail
	// succeeded.
	ErrUnexpectedSuccess = &Error{
		Code:    "UnexpectedSuccess",
		Message: "operation expected to fail succeeded",
	}

	// ErrUnexpectedFailure is returned when an operation expected to succeed
	// failed.
	ErrUnexpectedFailure = &Error{
		Code:    "UnexpectedFailure",
		Message: "operation expected to succeed failed",
	}

	// ErrContentMismatch is returned when retrieved bytes differ from the
	// reference bytes.
	ErrContentMismatch = &Error{
		Code:    "ContentMismatch",
		Message: "retrieved content does not match the reference",
	}

	// ErrMissingRequiredInput is returned when a required input file or
	// setting is absent or unreadable.
	ErrMissingRequiredInput = &Error{
		Code:    "MissingRequiredInput",
		Message: "required input is missing or unreadable",
		Fatal:   true,
	}

	// ErrInvalidCategory is returned for an unrecognized corruption category.
	ErrInvalidCategory = &Error{
		Code:    "InvalidCategory",
		Message: "unknown corruption category",
		Fatal:   true,
	}

	// ErrUnsupportedFrequency is returned for a fault-injection frequency
	// other than "always".
	ErrUnsupportedFrequency = &Error{
		Code:    "UnsupportedFrequency",
		Message: "fault injection frequency not supported",
		Fatal:   true,
	}

	// ErrNoSuchSession is returned when a multipart step references a key
	// without a live session in the test context.
	ErrNoSuchSession = &Error{
		Code:    "NoSuchSession",
		Message: "no multipart session for key",
		Fatal:   true,
	}

	// ErrMalformedOutput is returned when invoker output cannot be decoded.
	ErrMalformedOutput = &Error{
		Code:    "MalformedOutput",
		Message: "storage operation output could not be decoded",
	}

	// ErrMalformedPlan is returned when a test-plan document cannot be parsed.
	ErrMalformedPlan = &Error{
		Code:    "MalformedPlan",
		Message: "test plan could not be parsed",
		Fatal:   true,
	}
)
