package relay

import "errors"

// Messages sent to a single connection when its frame cannot be processed
const (
	msgRetroNotFound    = "Retro not found"
	msgRateLimited      = "Rate limit exceeded, slow down"
	msgUnknownEventType = "Unknown event type"
	msgInvalidPayload   = "Invalid payload"
)

// Relay construction errors
var (
	ErrNilManager  = errors.New("session manager cannot be nil")
	ErrNilRegistry = errors.New("registry cannot be nil")
)
