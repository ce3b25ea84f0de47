// Package errs defines the error-kind vocabulary shared across the recall core.
package errs

import "fmt"

// ErrorKind classifies a RecallError for callers that need to branch on recovery
// strategy without string-matching messages.
type ErrorKind string

const (
	NotFound        ErrorKind = "not_found"
	Conflict        ErrorKind = "conflict"
	BudgetExhausted ErrorKind = "budget_exhausted"
	UpstreamTimeout ErrorKind = "upstream_timeout"
	CorruptIndex    ErrorKind = "corrupt_index"
	Fatal           ErrorKind = "fatal"
)

// RecallError is the error type returned by public core operations.
type RecallError struct {
	kind    ErrorKind
	message string
	cause   error
}

func New(kind ErrorKind, message string) *RecallError {
	return &RecallError{kind: kind, message: message}
}

func Wrap(kind ErrorKind, message string, cause error) *RecallError {
	return &RecallError{kind: kind, message: message, cause: cause}
}

func (e *RecallError) Kind() ErrorKind { return e.kind }

func (e *RecallError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("recall: %s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("recall: %s: %s", e.kind, e.message)
}

func (e *RecallError) Unwrap() error { return e.cause }

// Is reports whether err is a *RecallError of the given kind.
func Is(err error, kind ErrorKind) bool {
	re, ok := err.(*RecallError)
	if !ok {
		return false
	}
	return re.kind == kind
}

func NotFoundf(format string, args ...any) *RecallError {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) *RecallError {
	return New(Conflict, fmt.Sprintf(format, args...))
}
