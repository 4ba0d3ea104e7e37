// Package direrr defines the dispatcher's error taxonomy: a single
// discriminated error type carrying a Kind from the §7 table, instead of a
// distinct Go type per failure mode. Internal helpers may still panic on
// programmer bugs; this type is only ever returned for conditions arising
// from user input, remote state, or subprocess behavior.
package direrr

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy. String values match the §7 names
// so that logging and tests can refer to them directly.
type Kind string

const (
	KindUriNotAllowed            Kind = "UriNotAllowed"
	KindPathTraversal            Kind = "PathTraversal"
	KindResourceFetchFailed      Kind = "ResourceFetchFailed"
	KindHTTPAbsent               Kind = "HTTPAbsent"
	KindInvalidDescriptor        Kind = "InvalidDescriptor"
	KindValidationError          Kind = "ValidationError"
	KindCircularInheritance      Kind = "CircularInheritance"
	KindBaseNotFound             Kind = "BaseNotFound"
	KindVersionResolutionFailed  Kind = "VersionResolutionFailed"
	KindNoCliConfigured          Kind = "NoCliConfigured"
	KindSubprocessExit           Kind = "SubprocessExit"
	KindTimeoutExceeded          Kind = "TimeoutExceeded"
	KindRateLimited              Kind = "RateLimited"
	KindUnauthorized             Kind = "Unauthorized"
	KindHTTPStatus               Kind = "HTTPStatusError"
)

// Error is the dispatcher's single discriminated error type. Fields beyond
// Kind and Message are populated only when relevant to that Kind (e.g. Code
// for KindHTTPStatus/KindSubprocessExit, Chain for KindCircularInheritance).
type Error struct {
	Kind    Kind
	Message string
	Code    int      // HTTP status or subprocess exit code, when applicable
	Chain   []string // inheritance chain, for KindCircularInheritance
	Field   string   // offending field, for KindValidationError
	Wrapped error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// New creates an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given kind that wraps an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it is a *Error, and ok=true.
func KindOf(err error) (kind Kind, ok bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
