package task

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid execution status transition")
	ErrNilTask           = errors.New("task is nil")
	ErrMissingTaskID     = errors.New("task id is empty")
)
