package run

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")

	// ErrAlreadyClaimed is returned by Runner.Execute when another executor
	// moved the run out of pending first.
	ErrAlreadyClaimed = errors.New("run already claimed")
)
