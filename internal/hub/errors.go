package hub

import "errors"

// Hub-specific errors
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrNilConnection     = errors.New("connection cannot be nil")
	ErrQueueFull         = errors.New("command queue is full")
)
