// Package errors provides error handling for refinery.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Typed sentinel errors for the orchestration engine
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle not found
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the orchestration engine.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested version, checkpoint, or artifact
	// does not exist
	ErrNotFound = New("not found")

	// ErrValidationFailed indicates a work unit rejected its input before
	// execution. This is an expected, non-exceptional outcome: no delegated
	// call was made and no artifact was written.
	ErrValidationFailed = New("input validation failed")

	// ErrPendingCall indicates a deferred generative call reached output
	// formatting without being resolved. A pending request is never a final
	// result; treating it as one would silently mask unexecuted work.
	ErrPendingCall = New("unresolved pending call")

	// ErrCheckpointWrite indicates orchestration state could not be
	// checkpointed. Fatal: a run that cannot checkpoint cannot be resumed
	// or audited.
	ErrCheckpointWrite = New("checkpoint write failed")

	// ErrInvalidArgument indicates a caller-supplied argument was malformed,
	// e.g. mismatched unit/input list lengths handed to the pool.
	ErrInvalidArgument = New("invalid argument")
)

// IsNotFound checks if an error is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return Is(err, ErrNotFound)
}

// IsValidationFailed checks if an error is or wraps ErrValidationFailed.
func IsValidationFailed(err error) bool {
	return Is(err, ErrValidationFailed)
}

// IsPendingCall checks if an error is or wraps ErrPendingCall.
func IsPendingCall(err error) bool {
	return Is(err, ErrPendingCall)
}
