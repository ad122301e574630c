package store

import "errors"

var (
	ErrCapacityExceeded = errors.New("task limit reached")
	ErrNotFound         = errors.New("task not found")
	ErrAlreadyCompleted = errors.New("task is already marked as completed")
	ErrInvalidInput     = errors.New("invalid input")
)
