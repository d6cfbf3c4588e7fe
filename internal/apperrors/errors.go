// Package apperrors holds the sentinel errors shared across promptlog layers.
package apperrors

import "errors"

var (
	// ErrInvalidArgument is returned for out-of-range settings or malformed entries.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoActiveSession is returned when an operation needs a tracking session.
	ErrNoActiveSession = errors.New("no active session")

	// ErrPersistence wraps store read/write failures.
	ErrPersistence = errors.New("persistence failure")

	// ErrPermissionDenied marks notifications that were not shown because
	// the user has not granted permission. It is a degraded state, not a fault.
	ErrPermissionDenied = errors.New("notification permission not granted")
)
