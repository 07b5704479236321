package tasks

import "errors"

var (
	// ErrValidation is returned for malformed submissions (bad input, not retried).
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientCredits is returned when the user's balance cannot cover a task.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrInvalidState is returned when an operation is not legal for the task's
	// current state. Callers treat it as a benign "already resolved".
	ErrInvalidState = errors.New("task already resolved")
	// ErrNotFound is returned when the task does not exist or is not owned by the caller.
	ErrNotFound = errors.New("task not found")
)
