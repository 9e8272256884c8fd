// Package errs defines the discriminated-by-kind error taxonomy used
// across SpinePrep's steps and orchestrator (spec section 7).
package errs

import (
	"errors"
	"fmt"
)

// Kind discriminates error categories by what they mean to the
// orchestrator, not by Go type. Every recoverable Kind downgrades the
// owning step to SKIP; every fatal Kind aborts the invocation.
type Kind string

const (
	// ConfigInvalid is fatal and computed before execution.
	ConfigInvalid Kind = "config_invalid"
	// MissingRequiredInput is fatal at the step level.
	MissingRequiredInput Kind = "missing_required_input"
	// ToolUnavailable is recoverable: step transitions to SKIP.
	ToolUnavailable Kind = "tool_unavailable"
	// ToolFailure is recoverable like ToolUnavailable.
	ToolFailure Kind = "tool_failure"
	// NumericalDegenerate is recoverable in the confounds engine.
	NumericalDegenerate Kind = "numerical_degenerate"
	// AtomicCommitFailed is fatal at the step level.
	AtomicCommitFailed Kind = "atomic_commit_failed"
)

// Recoverable reports whether k downgrades a step to SKIP rather than
// aborting the whole invocation.
func (k Kind) Recoverable() bool {
	switch k {
	case ToolUnavailable, ToolFailure, NumericalDegenerate:
		return true
	default:
		return false
	}
}

// Error is a SpinePrep error carrying its Kind alongside the usual
// wrapped cause. Callers discriminate behavior by Kind, never by
// unwrapping to a concrete Go type.
type Error struct {
	Kind Kind
	Op   string // the operation or step that raised it, e.g. "crop_detect(run-01)"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// reporting ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
