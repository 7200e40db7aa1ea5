package store

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a record with the same identifier exists.
	ErrConflict = errors.New("already exists")

	// ErrStatusConflict is returned when a run update would violate the
	// status state machine, or when a compare-and-swap on status lost.
	ErrStatusConflict = errors.New("run status conflict")
)
