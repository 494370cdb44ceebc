package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"retroboard/internal/clock"
	"retroboard/internal/export"
	"retroboard/internal/ids"
	"retroboard/pkg/interfaces"
	"retroboard/pkg/types"
)

// DefaultTimerDuration is used when a session is created without a timer.
const DefaultTimerDuration = 300

// Manager implements the SessionManager interface. It owns the one session
// of the process; every mutation validates, applies to a copy, persists the
// copy and only then swaps it in.
type Manager struct {
	store        interfaces.SessionStore
	clock        clock.Clock
	ids          ids.Generator
	defaultTimer int

	session *types.Session
	mu      sync.RWMutex
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces the system clock
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithIDGenerator replaces the random id generator
func WithIDGenerator(g ids.Generator) Option {
	return func(m *Manager) { m.ids = g }
}

// WithDefaultTimerDuration sets the timer used when CreateSession gets none
func WithDefaultTimerDuration(seconds int) Option {
	return func(m *Manager) {
		if seconds > 0 {
			m.defaultTimer = seconds
		}
	}
}

// NewManager creates a new session manager
func NewManager(store interfaces.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		clock:        clock.New(),
		ids:          ids.New(),
		defaultTimer: DefaultTimerDuration,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadActiveSession restores the session found in the store's active slot.
// An empty slot is not an error.
func (m *Manager) LoadActiveSession(ctx context.Context) error {
	session, err := m.store.LoadActive(ctx)
	if errors.Is(err, interfaces.ErrSessionNotFound) {
		log.Printf("No active retro to restore")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load active session: %w", err)
	}

	session.Normalize()

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	log.Printf("Restored session: id=%s name=%q phase=%s participants=%d",
		session.ID, session.SprintName, session.Phase, len(session.Participants))
	return nil
}

// CreateSession creates a new session in the lobby phase
func (m *Manager) CreateSession(ctx context.Context, sprintName string, timerDuration int) (*types.Credentials, error) {
	if err := types.ValidateSprintName(sprintName); err != nil {
		return nil, invalidInput(err)
	}
	if timerDuration <= 0 {
		timerDuration = m.defaultTimer
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && !m.session.IsClosed() {
		return nil, newError(KindConflict, "A retro is already in progress. Close it first.")
	}

	session := &types.Session{
		PublicSession: types.PublicSession{
			ID:            m.ids.NewID(),
			SprintName:    sprintName,
			Phase:         types.PhaseLobby,
			TimerDuration: timerDuration,
			CreatedAt:     m.clock.Now(),
		},
		AdminToken: m.ids.NewSecret(),
	}
	session.Normalize()

	if err := m.store.SaveActive(ctx, session); err != nil {
		return nil, persistenceError("create session", err)
	}
	m.session = session

	log.Printf("Created session: id=%s name=%q timer=%d", session.ID, session.SprintName, timerDuration)
	return &types.Credentials{RetroID: session.ID, AdminToken: session.AdminToken}, nil
}

// IsAdminToken reports whether token is the current session's admin secret
func (m *Manager) IsAdminToken(token string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isAdmin(token)
}

func (m *Manager) isAdmin(token string) bool {
	if m.session == nil || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(m.session.AdminToken)) == 1
}

// AddParticipant appends name to the roster
func (m *Manager) AddParticipant(ctx context.Context, name string, isAdmin bool) (*types.Participant, error) {
	var participant types.Participant
	var sessionID string
	err := m.mutate(ctx, func(s *types.Session) error {
		sessionID = s.ID
		if err := requireOpen(s); err != nil {
			return err
		}
		if err := types.ValidateParticipantName(name); err != nil {
			return invalidInput(err)
		}
		if s.HasParticipant(name) {
			return newError(KindConflict, "Participant %q already exists", name)
		}
		participant = types.Participant{Name: name, IsAdmin: isAdmin, JoinedAt: m.clock.Now()}
		s.Participants = append(s.Participants, participant)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Participant joined: session=%s name=%q admin=%t", sessionID, name, isAdmin)
	return &participant, nil
}

// RemoveParticipant drops name from the roster. Unknown names, a missing
// session and a closed session are all no-ops.
func (m *Manager) RemoveParticipant(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.session.IsClosed() || !m.session.HasParticipant(name) {
		return nil
	}
	return m.apply(ctx, func(s *types.Session) error {
		kept := s.Participants[:0]
		for _, p := range s.Participants {
			if p.Name != name {
				kept = append(kept, p)
			}
		}
		s.Participants = kept
		return nil
	})
}

// HasParticipant reports whether name is on the roster
func (m *Manager) HasParticipant(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil && m.session.HasParticipant(name)
}

// ChangePhase advances the session to its immediate successor phase.
// Entering closed stamps ClosedAt, archives the session and frees the
// active slot.
func (m *Manager) ChangePhase(ctx context.Context, adminToken string) (types.Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return "", errNoSession()
	}
	if !m.isAdmin(adminToken) {
		return "", errNotAdmin()
	}
	nextPhase, ok := m.session.Phase.Next()
	if !ok {
		return "", newError(KindState, "Already at the last phase")
	}

	next := m.session.Clone()
	next.Phase = nextPhase
	next.TimerEndsAt = nil

	if nextPhase == types.PhaseClosed {
		closedAt := m.clock.Now()
		next.ClosedAt = &closedAt
		if err := m.store.CloseActive(ctx, next); err != nil {
			return "", persistenceError("archive session", err)
		}
		m.session = next
		log.Printf("Closed session: id=%s name=%q items=%d action_points=%d",
			next.ID, next.SprintName, len(next.Items), len(next.ActionPoints))
		return nextPhase, nil
	}

	if err := m.store.SaveActive(ctx, next); err != nil {
		return "", persistenceError("save session", err)
	}
	m.session = next

	log.Printf("Phase changed: session=%s phase=%s", next.ID, nextPhase)
	return nextPhase, nil
}

// AddItem submits an item in its category's collection phase
func (m *Manager) AddItem(ctx context.Context, text, author string, category types.Category) (*types.RetroItem, error) {
	var item types.RetroItem
	err := m.mutate(ctx, func(s *types.Session) error {
		if err := requireOpen(s); err != nil {
			return err
		}
		if !types.IsValidCategory(category) {
			return invalidInput(types.ErrInvalidCategory)
		}
		if s.Phase != category.CollectionPhase() {
			return newError(KindState, "Cannot add %s items in phase %s", category, s.Phase)
		}
		if err := types.ValidateText(text); err != nil {
			return invalidInput(err)
		}
		item = types.RetroItem{
			ID:        m.ids.NewID(),
			Text:      text,
			Author:    author,
			Votes:     []string{},
			Category:  category,
			CreatedAt: m.clock.Now(),
		}
		s.Items = append(s.Items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Vote records voter's vote on an item and returns the item's voters
func (m *Manager) Vote(ctx context.Context, itemID, voter string) ([]string, error) {
	var votes []string
	err := m.mutate(ctx, func(s *types.Session) error {
		item, err := votableItem(s, itemID)
		if err != nil {
			return err
		}
		if item.HasVote(voter) {
			return newError(KindConflict, "You already voted for this item")
		}
		item.Votes = append(item.Votes, voter)
		votes = append([]string{}, item.Votes...)
		return nil
	})
	return votes, err
}

// Unvote withdraws voter's vote. Withdrawing a vote that was never cast
// succeeds and leaves the voters unchanged.
func (m *Manager) Unvote(ctx context.Context, itemID, voter string) ([]string, error) {
	var votes []string
	err := m.mutate(ctx, func(s *types.Session) error {
		item, err := votableItem(s, itemID)
		if err != nil {
			return err
		}
		kept := make([]string, 0, len(item.Votes))
		for _, v := range item.Votes {
			if v != voter {
				kept = append(kept, v)
			}
		}
		item.Votes = kept
		votes = append([]string{}, kept...)
		return nil
	})
	return votes, err
}

func votableItem(s *types.Session, itemID string) (*types.RetroItem, error) {
	if err := requireOpen(s); err != nil {
		return nil, err
	}
	if !s.Phase.IsVoting() {
		return nil, newError(KindState, "Voting is not allowed in this phase")
	}
	item, ok := s.FindItem(itemID)
	if !ok {
		return nil, newError(KindNotFound, "Item not found")
	}
	return item, nil
}

// StartTimer sets an advisory countdown of seconds from now
func (m *Manager) StartTimer(ctx context.Context, adminToken string, seconds int) (time.Time, error) {
	var endsAt time.Time
	err := m.mutateAsAdmin(ctx, adminToken, func(s *types.Session) error {
		if seconds <= 0 {
			return invalidInput(types.ErrInvalidTimerDuration)
		}
		endsAt = m.clock.Now().Add(time.Duration(seconds) * time.Second)
		s.TimerEndsAt = &endsAt
		s.TimerDuration = seconds
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return endsAt, nil
}

// SelectBrainstormItems replaces the brainstorm selection. Every id must be
// an existing improve item, otherwise nothing changes.
func (m *Manager) SelectBrainstormItems(ctx context.Context, adminToken string, itemIDs []string) ([]string, error) {
	selected := append([]string{}, itemIDs...)
	err := m.mutateAsAdmin(ctx, adminToken, func(s *types.Session) error {
		for _, id := range selected {
			item, ok := s.FindItem(id)
			if !ok || item.Category != types.CategoryImprove {
				return newError(KindNotFound, "Item %s not found or not an improvement item", id)
			}
		}
		s.BrainstormItemIDs = selected
		return nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string{}, selected...), nil
}

// AddBrainstormComment attaches a note during brainstorming. itemID is
// stored as given.
func (m *Manager) AddBrainstormComment(ctx context.Context, itemID, text, author string) (*types.BrainstormComment, error) {
	var comment types.BrainstormComment
	err := m.mutate(ctx, func(s *types.Session) error {
		if err := requireOpen(s); err != nil {
			return err
		}
		if s.Phase != types.PhaseBrainstorming {
			return newError(KindState, "Brainstorming is not active")
		}
		if err := types.ValidateText(text); err != nil {
			return invalidInput(err)
		}
		comment = types.BrainstormComment{
			ID:        m.ids.NewID(),
			ItemID:    itemID,
			Text:      text,
			Author:    author,
			CreatedAt: m.clock.Now(),
		}
		s.BrainstormComments = append(s.BrainstormComments, comment)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// AddActionPoint creates a follow-up task during the action points phase
func (m *Manager) AddActionPoint(ctx context.Context, text, assignee, createdBy, itemID string) (*types.ActionPoint, error) {
	var ap types.ActionPoint
	err := m.mutate(ctx, func(s *types.Session) error {
		if err := requireActionPoints(s); err != nil {
			return err
		}
		if err := types.ValidateText(text); err != nil {
			return invalidInput(err)
		}
		ap = types.ActionPoint{
			ID:        m.ids.NewID(),
			Text:      text,
			Assignee:  assignee,
			CreatedBy: createdBy,
			ItemID:    itemID,
		}
		s.ActionPoints = append(s.ActionPoints, ap)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ap, nil
}

// AssignActionPoint overwrites the assignee of an action point
func (m *Manager) AssignActionPoint(ctx context.Context, actionPointID, assignee string) (*types.ActionPoint, error) {
	var updated types.ActionPoint
	err := m.mutate(ctx, func(s *types.Session) error {
		if err := requireActionPoints(s); err != nil {
			return err
		}
		ap, ok := s.FindActionPoint(actionPointID)
		if !ok {
			return newError(KindNotFound, "Action point not found")
		}
		ap.Assignee = assignee
		updated = *ap
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func requireOpen(s *types.Session) error {
	if s.IsClosed() {
		return errClosed()
	}
	return nil
}

func requireActionPoints(s *types.Session) error {
	if err := requireOpen(s); err != nil {
		return err
	}
	if s.Phase != types.PhaseActionPoints {
		return newError(KindState, "Action points phase is not active")
	}
	return nil
}

// ExportCSV renders the in-memory session, open or closed
func (m *Manager) ExportCSV() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return "", errNoSession()
	}
	return export.RenderCSV(&m.session.PublicSession), nil
}

// Session returns a copy of the session including its admin secret
func (m *Manager) Session() *types.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Clone()
}

// PublicSession returns the snapshot sent to clients, nil without a session
func (m *Manager) PublicSession() *types.PublicSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Public()
}

// Snapshot returns the public snapshot when sessionID is the in-memory session
func (m *Manager) Snapshot(sessionID string) (*types.PublicSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil || m.session.ID != sessionID {
		return nil, false
	}
	return m.session.Public(), true
}

// ActiveSnapshot returns the snapshot of a session that is not closed
func (m *Manager) ActiveSnapshot() *types.PublicSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil || m.session.IsClosed() {
		return nil
	}
	return m.session.Public()
}

// GetStats returns session manager statistics
func (m *Manager) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return map[string]interface{}{"active_session": false}
	}
	return map[string]interface{}{
		"active_session": !m.session.IsClosed(),
		"session_id":     m.session.ID,
		"phase":          string(m.session.Phase),
		"participants":   len(m.session.Participants),
		"items":          len(m.session.Items),
		"action_points":  len(m.session.ActionPoints),
	}
}

// mutate runs fn against a copy of the session under the write lock, then
// persists the copy and swaps it in. Any error leaves the session untouched.
func (m *Manager) mutate(ctx context.Context, fn func(s *types.Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return errNoSession()
	}
	return m.apply(ctx, fn)
}

// mutateAsAdmin is mutate for admin-only operations. Authorization is
// checked before the session's phase.
func (m *Manager) mutateAsAdmin(ctx context.Context, adminToken string, fn func(s *types.Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return errNoSession()
	}
	if !m.isAdmin(adminToken) {
		return errNotAdmin()
	}
	return m.apply(ctx, func(s *types.Session) error {
		if err := requireOpen(s); err != nil {
			return err
		}
		return fn(s)
	})
}

// apply must be called with the write lock held and a non-nil session.
func (m *Manager) apply(ctx context.Context, fn func(s *types.Session) error) error {
	next := m.session.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := m.store.SaveActive(ctx, next); err != nil {
		log.Printf("Failed to persist session: id=%s error=%v", next.ID, err)
		return persistenceError("save session", err)
	}
	m.session = next
	return nil
}
