package interfaces

import (
	"context"

	"retroboard/pkg/types"
)

// SessionStore persists the active session and the archive of closed ones
// Every backend (file, sqlite, redis) implements the same last-write-wins
// contract: one overwritable active slot plus immutable archive records.
type SessionStore interface {
	// SaveActive overwrites the active slot with the full session, secret included
	SaveActive(ctx context.Context, session *types.Session) error

	// LoadActive returns the active snapshot or ErrSessionNotFound when the slot is empty
	LoadActive(ctx context.Context) (*types.Session, error)

	// ClearActive removes the active slot; clearing an empty slot is not an error
	ClearActive(ctx context.Context) error

	// Archive writes the JSON snapshot and CSV report of a closed session
	// Records are keyed by session id, so archives of different sessions never collide
	Archive(ctx context.Context, session *types.Session) error

	// CloseActive archives a closed session and empties the active slot as one
	// unit. On error neither change is visible.
	CloseActive(ctx context.Context, session *types.Session) error

	// ListArchived returns a summary per archived session, order unspecified
	ListArchived(ctx context.Context) ([]types.ArchiveSummary, error)

	// FindByID checks the active slot first, then the archive
	FindByID(ctx context.Context, sessionID string) (*types.Session, error)

	// HealthCheck verifies the backend is reachable
	HealthCheck(ctx context.Context) error

	// Close releases backend resources
	Close() error
}
