// Package sparkleapi is the single write/read contract described in §4.5
// and §4.6: every mutation goes through validate -> invariant check ->
// construct Person -> write event -> incrementally update the aggregate
// -> arm the commit scheduler -> return, and every read goes through the
// in-memory aggregate cache. It is grounded on the teacher's daemon
// command-handler layer (cmd/bd's issue mutation commands), generalized
// from direct SQLite writes to event-file writes plus incremental folds.
package sparkleapi

import "fmt"

// ErrorKind is the error taxonomy of §7. Every error this package returns
// is an *Error so the HTTP layer can map Kind to a status code without
// re-deriving it from the message text.
type ErrorKind string

const (
	ErrValidation          ErrorKind = "validation_error"
	ErrNotFound            ErrorKind = "not_found"
	ErrCycle               ErrorKind = "cycle_error"
	ErrConcurrencyConflict ErrorKind = "concurrency_conflict"
	ErrGitUnavailable      ErrorKind = "git_unavailable"
	ErrMergeConflict       ErrorKind = "merge_conflict"
	ErrConfigMissing       ErrorKind = "config_missing"
	ErrShuttingDown        ErrorKind = "shutting_down"
	ErrFatal               ErrorKind = "fatal"
)

// Error is the single error type returned by every sparkleapi operation.
type Error struct {
	Kind    ErrorKind
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// HTTPStatus maps an error Kind to the status code the daemon's HTTP
// layer should respond with (§7). GitUnavailable has no HTTP mapping: it
// is only ever surfaced over SSE, never as an API response, so it falls
// back to 503 if a caller asks anyway.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case ErrValidation:
		return 400
	case ErrNotFound:
		return 404
	case ErrCycle:
		return 409
	case ErrConcurrencyConflict:
		return 503
	case ErrConfigMissing:
		return 503
	case ErrShuttingDown:
		return 503
	case ErrGitUnavailable:
		return 503
	default:
		return 500
	}
}

func validationErr(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundErr(itemID string) *Error {
	return &Error{Kind: ErrNotFound, Message: "item not found", Detail: itemID}
}

func cycleErr(from, to string) *Error {
	return &Error{Kind: ErrCycle, Message: "dependency would create a cycle", Detail: from + " -> " + to}
}

// rebuildingErr is returned by reads that need a consistent view across
// every item (§7's ConcurrencyConflict: 503 with rebuilding:true) while a
// full aggregate rebuild is replacing the in-memory map wholesale.
func rebuildingErr() *Error {
	return &Error{Kind: ErrConcurrencyConflict, Message: "aggregate rebuild in progress", Detail: "rebuilding"}
}
