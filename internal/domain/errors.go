package domain

import (
    "errors"
    "fmt"
)

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errString("not found")

type errString string

func (e errString) Error() string { return string(e) }

// StageError reports a single stage's failure. Only the scout stage's
// failure is surfaced to callers of the pipeline; all others are captured
// into the composite record.
type StageError struct {
    Stage string
    Cause error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Cause) }
func (e *StageError) Unwrap() error { return e.Cause }

// InitError is a fatal stage-initialization failure raised at startup.
type InitError struct {
    Stage string
    Cause error
}

func (e *InitError) Error() string { return fmt.Sprintf("init stage %s: %v", e.Stage, e.Cause) }
func (e *InitError) Unwrap() error { return e.Cause }

// PersistenceKind splits store failures into retryable and terminal.
type PersistenceKind int

const (
    // Transient covers connectivity loss; callers may retry the submission.
    Transient PersistenceKind = iota
    // Constraint covers validation/uniqueness conflicts; retrying won't help.
    Constraint
)

func (k PersistenceKind) String() string {
    if k == Constraint {
        return "constraint"
    }
    return "transient"
}

// PersistenceError is the typed failure for every store operation.
type PersistenceError struct {
    Kind  PersistenceKind
    Op    string
    Cause error
}

func (e *PersistenceError) Error() string {
    return fmt.Sprintf("store %s (%s): %v", e.Op, e.Kind, e.Cause)
}
func (e *PersistenceError) Unwrap() error { return e.Cause }

// Retryable reports whether the whole submission may be retried.
func (e *PersistenceError) Retryable() bool { return e.Kind == Transient }

// ValidationError rejects malformed input before any stage runs.
type ValidationError struct {
    Field  string
    Reason string
}

func (e *ValidationError) Error() string {
    return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
    var ve *ValidationError
    return errors.As(err, &ve)
}
