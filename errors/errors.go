// Package errors provides error handling for dispatch.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
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
//	// Check against the taxonomy
//	if errors.IsValidationError(err) {
//	    // report reason to the caller, state unchanged
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

// Sentinel errors forming the dispatch error taxonomy.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrValidation indicates a request rejected before any persistence
	// attempt: missing date/time, non-positive estimate amount, a date in
	// the past or beyond the scheduling horizon, an invalid status
	// transition.
	ErrValidation = New("validation failed")

	// ErrNotPermitted indicates the action is not allowed for the job's
	// current status, or the party is not authorized to perform it.
	ErrNotPermitted = New("not permitted")

	// ErrNotFound indicates the requested job does not exist.
	ErrNotFound = New("not found")

	// ErrConflict indicates an optimistic-concurrency failure: the job
	// record changed since it was read. Callers should re-read and retry.
	ErrConflict = New("version conflict")

	// ErrUnavailable indicates a transient infrastructure failure
	// (connectivity loss, backend unavailability). Distinct from
	// ErrNotPermitted so callers can offer a retry instead of telling the
	// user "not allowed".
	ErrUnavailable = New("backend unavailable")
)

// IsValidationError checks if an error is or wraps ErrValidation.
func IsValidationError(err error) bool {
	return err != nil && Is(err, ErrValidation)
}

// IsPermissionError checks if an error is or wraps ErrNotPermitted.
func IsPermissionError(err error) bool {
	return err != nil && Is(err, ErrNotPermitted)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflictError checks if an error is or wraps ErrConflict.
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsUnavailableError checks if an error is or wraps ErrUnavailable.
func IsUnavailableError(err error) bool {
	return err != nil && Is(err, ErrUnavailable)
}

// NewValidationError creates a validation error with a formatted reason.
func NewValidationError(format string, args ...interface{}) error {
	return Wrap(ErrValidation, Newf(format, args...).Error())
}

// NewPermissionError creates a permission error with a formatted reason.
func NewPermissionError(format string, args ...interface{}) error {
	return Wrap(ErrNotPermitted, Newf(format, args...).Error())
}

// NewNotFoundError creates a not-found error with a formatted message.
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// WrapUnavailable wraps a transient infrastructure error with context.
func WrapUnavailable(err error, context string) error {
	return Wrap(Wrap(ErrUnavailable, err.Error()), context)
}
