package cluster

import "errors"

// Daemon lifecycle errors
var (
	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")
)

// Endpoint errors
var (
	ErrEndpointNotFound = errors.New("endpoint not found in registry")
	ErrNoAddress        = errors.New("endpoint has no address")
)
