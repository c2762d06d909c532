package authz

import (
	"errors"
	"fmt"
)

// Common engine errors.
var (
	// ErrNoSubject indicates a request without a subject.
	ErrNoSubject = errors.New("no subject in request")

	// ErrSnapshotNotLoaded indicates that Decide was called before any
	// snapshot was installed.
	ErrSnapshotNotLoaded = errors.New("no policy snapshot loaded")

	// ErrSchemaNotDeclared indicates that the request's declared schema
	// is absent from the model.
	ErrSchemaNotDeclared = errors.New("request schema not declared in model")
)

// PolicyRowError reports a persisted row that could not be turned into
// a rule or edge. The row is skipped; loading continues; all skipped
// rows are batched into the snapshot's build report.
type PolicyRowError struct {
	// Index is the row's position in the loaded sequence.
	Index int

	// Tag is the row's declared schema tag.
	Tag string

	// Msg describes the defect.
	Msg string

	// Err is the underlying error, if any.
	Err error
}

// Error returns the error message.
func (e *PolicyRowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("policy row %d (%s): %s: %v", e.Index, e.Tag, e.Msg, e.Err)
	}
	return fmt.Sprintf("policy row %d (%s): %s", e.Index, e.Tag, e.Msg)
}

// Unwrap returns the underlying error.
func (e *PolicyRowError) Unwrap() error {
	return e.Err
}

// EvaluationError reports a row that failed to evaluate during a
// decision: an unresolved variable or function, a type mismatch, or
// malformed placeholder syntax in a pattern. The affected row is
// treated as non-matching; the error is recorded for observability.
type EvaluationError struct {
	// Source is the expression or pattern that failed.
	Source string

	// Err is the underlying error.
	Err error
}

// Error returns the error message.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation of %q failed: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *EvaluationError) Unwrap() error {
	return e.Err
}
