package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed   = errors.New("connection closed")
	ErrSlowConsumer       = errors.New("outbound queue full, connection dropped")
	ErrInvalidJSON        = errors.New("invalid JSON data")
	ErrInvalidCredentials = errors.New("session id and participant name are required")
)

// Registry-related errors
var (
	ErrNilConnection       = errors.New("connection cannot be nil")
	ErrConnectionNotJoined = errors.New("connection must join before entering a room")
	ErrEmptyRoom           = errors.New("room id cannot be empty")
)
