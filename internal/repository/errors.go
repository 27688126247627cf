package repository

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition indicates a status update matched no row,
	// meaning the job was not in the expected state.
	ErrInvalidTransition = errors.New("invalid status transition")
)
