package interfaces

import (
	"context"
	"time"

	"retroboard/pkg/types"
)

// SessionManager owns the single retrospective and enforces every mutation rule
// All mutating operations are context-first and either fully apply (in memory
// and in the store) or return an error and leave the session untouched.
type SessionManager interface {
	// CreateSession starts a new session in the lobby
	CreateSession(ctx context.Context, sprintName string, timerDuration int) (*types.Credentials, error)

	// IsAdminToken reports whether token matches the current session's admin secret
	IsAdminToken(token string) bool

	AddParticipant(ctx context.Context, name string, isAdmin bool) (*types.Participant, error)
	RemoveParticipant(ctx context.Context, name string) error
	HasParticipant(name string) bool

	// ChangePhase advances to the immediate successor phase (admin only)
	ChangePhase(ctx context.Context, adminToken string) (types.Phase, error)

	AddItem(ctx context.Context, text, author string, category types.Category) (*types.RetroItem, error)
	Vote(ctx context.Context, itemID, voter string) ([]string, error)
	Unvote(ctx context.Context, itemID, voter string) ([]string, error)

	// StartTimer sets an advisory countdown (admin only)
	StartTimer(ctx context.Context, adminToken string, seconds int) (time.Time, error)

	// SelectBrainstormItems replaces the brainstorm selection (admin only)
	SelectBrainstormItems(ctx context.Context, adminToken string, itemIDs []string) ([]string, error)

	AddBrainstormComment(ctx context.Context, itemID, text, author string) (*types.BrainstormComment, error)
	AddActionPoint(ctx context.Context, text, assignee, createdBy, itemID string) (*types.ActionPoint, error)
	AssignActionPoint(ctx context.Context, actionPointID, assignee string) (*types.ActionPoint, error)

	// ExportCSV renders the in-memory session as a CSV report
	ExportCSV() (string, error)

	// PublicSession returns a snapshot without the admin secret, nil without a session
	PublicSession() *types.PublicSession

	// Snapshot returns the public snapshot when sessionID matches the in-memory session
	Snapshot(sessionID string) (*types.PublicSession, bool)

	// ActiveSnapshot returns the public snapshot of a non-closed session, nil otherwise
	ActiveSnapshot() *types.PublicSession

	GetStats() map[string]interface{}
}
