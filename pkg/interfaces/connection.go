package interfaces

// Connection represents one client on the event stream
// The relay and the room registry only ever see this interface, so tests can
// drive them with in-memory fakes instead of real WebSocket connections.
type Connection interface {
	// GetID returns the server-assigned connection identifier
	GetID() string

	// WriteJSON queues a JSON frame for the client without blocking (thread-safe, FIFO)
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error

	// SetCredentials binds the join context to the connection
	SetCredentials(sessionID, participantName, adminToken string) error

	// IsJoined returns true once a join has bound a session and a name
	IsJoined() bool

	// GetSessionID returns the bound session id, empty before join
	GetSessionID() string

	// GetParticipantName returns the bound participant name, empty before join
	GetParticipantName() string

	// GetAdminToken returns the admin token supplied at join, possibly empty
	GetAdminToken() string
}
