package repository

import "errors"

var (
	ErrStoreClosed      = errors.New("repository store is closed")
	ErrMissingPerformer = errors.New("task has no performer to queue for")
	ErrNotPending       = errors.New("task is no longer pending")
)
