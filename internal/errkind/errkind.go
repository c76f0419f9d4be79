// Package errkind defines the closed set of error kinds the engine
// distinguishes when deciding how to propagate a failure.
package errkind

import "fmt"

// Kind is one of the error kinds enumerated in the specification's error
// handling design.
type Kind string

const (
	// TransientProvider is a retryable HTTP failure (429, 5xx).
	TransientProvider Kind = "transient_provider"
	// PermanentProvider is a non-retryable 4xx (other than 429).
	PermanentProvider Kind = "permanent_provider"
	// ValidationFailure means an agent's structured output failed schema
	// validation.
	ValidationFailure Kind = "validation_failure"
	// ConcurrencyGuard means a role-singleton violation was rejected.
	ConcurrencyGuard Kind = "concurrency_guard"
	// Cancelled means a run was explicitly cancelled or shut down.
	Cancelled Kind = "cancelled"
	// Timeout means a run exceeded its configured duration.
	Timeout Kind = "timeout"
	// EnvironmentFailure covers worktree, filesystem, and subprocess
	// failures.
	EnvironmentFailure Kind = "environment_failure"
)

// Error wraps an underlying error with a Kind and the operation that
// produced it, so callers can both errors.Is/As against the wrapped error
// and inspect Kind directly.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var de *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			de = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return de != nil && de.Kind == kind
}
