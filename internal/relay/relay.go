package relay

import (
	"context"
	"errors"
	"fmt"
	"log"

	"retroboard/internal/session"
	"retroboard/internal/websocket"
	"retroboard/pkg/interfaces"
	"retroboard/pkg/types"
)

// Relay turns inbound commands into session mutations and fans the
// resulting events out to the room. The hub calls it from a single
// goroutine, which is what gives every room one event order.
type Relay struct {
	manager     interfaces.SessionManager
	registry    *websocket.Registry
	rateLimiter *RateLimiter
}

// NewRelay creates a new event relay. A nil limiter gets the default budget.
func NewRelay(manager interfaces.SessionManager, registry *websocket.Registry, limiter *RateLimiter) (*Relay, error) {
	if manager == nil {
		return nil, ErrNilManager
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if limiter == nil {
		limiter = NewRateLimiter(DefaultCommandsPerMinute, nil)
	}
	return &Relay{
		manager:     manager,
		registry:    registry,
		rateLimiter: limiter,
	}, nil
}

// commandHandler processes one decoded command for a joined connection
type commandHandler func(r *Relay, ctx context.Context, conn interfaces.Connection, env *types.Envelope) error

var commandHandlers = map[string]commandHandler{
	types.CommandAddItem:               (*Relay).addItem,
	types.CommandVote:                  (*Relay).vote,
	types.CommandUnvote:                (*Relay).unvote,
	types.CommandChangePhase:           (*Relay).changePhase,
	types.CommandStartTimer:            (*Relay).startTimer,
	types.CommandSelectBrainstormItems: (*Relay).selectBrainstormItems,
	types.CommandAddBrainstormComment:  (*Relay).addBrainstormComment,
	types.CommandAddActionPoint:        (*Relay).addActionPoint,
	types.CommandAssignActionPoint:     (*Relay).assignActionPoint,
}

// HandleCommand processes one inbound frame from conn
func (r *Relay) HandleCommand(ctx context.Context, conn interfaces.Connection, env *types.Envelope) {
	if !r.rateLimiter.Allow(conn.GetID()) {
		r.sendError(conn, msgRateLimited)
		return
	}

	if env.Type == types.CommandJoin {
		r.join(ctx, conn, env)
		return
	}

	handler, ok := commandHandlers[env.Type]
	if !ok {
		r.sendError(conn, fmt.Sprintf("%s: %s", msgUnknownEventType, env.Type))
		return
	}

	// Commands from connections that never joined are dropped
	if !conn.IsJoined() {
		return
	}
	if _, ok := r.manager.Snapshot(conn.GetSessionID()); !ok {
		r.sendError(conn, msgRetroNotFound)
		return
	}

	if err := handler(r, ctx, conn, env); err != nil {
		r.reportFailure(conn, env.Type, err)
	}
}

// HandleDisconnect tells the rest of the room that conn left and forgets it.
// The participant stays on the roster.
func (r *Relay) HandleDisconnect(ctx context.Context, conn interfaces.Connection) {
	defer func() {
		r.registry.Unregister(conn)
		r.rateLimiter.Forget(conn.GetID())
	}()

	room, ok := r.registry.LeaveRoom(conn)
	if !ok || !conn.IsJoined() {
		return
	}

	name := conn.GetParticipantName()
	r.broadcast(room, types.EventParticipantLeft, types.ParticipantLeftPayload{Name: name})
	log.Printf("Participant left: session=%s name=%q conn=%s", room, name, conn.GetID())
}

// join binds conn to the current session and sends it the full state
func (r *Relay) join(ctx context.Context, conn interfaces.Connection, env *types.Envelope) {
	var payload types.JoinPayload
	if err := env.Decode(&payload); err != nil {
		r.sendError(conn, errInvalidPayload(env.Type).Error())
		return
	}

	current := r.manager.ActiveSnapshot()
	if current == nil || payload.RetroID == "" || current.ID != payload.RetroID {
		r.sendError(conn, msgRetroNotFound)
		return
	}

	var joined *types.Participant
	if !r.manager.HasParticipant(payload.ParticipantName) {
		participant, err := r.manager.AddParticipant(ctx, payload.ParticipantName, r.manager.IsAdminToken(payload.AdminToken))
		switch {
		case err == nil:
			joined = participant
		case errors.Is(err, session.ErrConflict):
			// Lost a race with another join of the same name: rebind silently
		default:
			r.reportFailure(conn, env.Type, err)
			return
		}
	}

	if err := conn.SetCredentials(payload.RetroID, payload.ParticipantName, payload.AdminToken); err != nil {
		r.sendError(conn, err.Error())
		return
	}
	if err := r.registry.JoinRoom(conn); err != nil {
		log.Printf("Failed to join room: conn=%s session=%s: %v", conn.GetID(), payload.RetroID, err)
		r.sendError(conn, msgRetroNotFound)
		return
	}

	if joined != nil {
		r.broadcast(payload.RetroID, types.EventParticipantJoined, joined)
	}

	if snapshot, ok := r.manager.Snapshot(payload.RetroID); ok {
		r.send(conn, types.EventState, snapshot)
	}
}

func (r *Relay) addItem(ctx context.Context, conn interfaces.Connection, env *types.Envelope) error {
	var payload types.AddItemPayload
	if err := env.Decode(&payload); err != nil {
		return errInvalidPayload(env.Type)
	}
	item, err := r.manager.AddItem(ctx, payload.Text, conn.GetParticipantName(), payload.Category)
	if err != nil {
		return err
	}
	r.broadcast(conn.GetSessionID(), types.EventItemAdded, item)
	return nil
}

func (r *Relay) vote(ctx context.Context, conn interfaces.Connection, env *types.Envelope) error {
	var payload types.ItemRefPayload
	if err := env.Decode(&payload); err != nil {
		return errInvalidPayload(env.Type)
	}
	votes, err := r.manager.Vote(ctx, payload.ItemID, conn.GetParticipantName())
	if err != nil {
		return err
	}
	r.broadcast(conn.GetSessionID(), types.EventVoteUpdated, types.VoteUpdatedPayload{ItemID: payload.ItemID, Votes: votes})
	return nil
}

func (r *Relay) unvote(ctx context.Context, conn interfaces.Connection, env *types.Envelope) error {
	var payload types.ItemRefPayload
	if err := env.Decode(&payload); err != nil {
		return errInvalidPayload(env.Type)
	}
	votes, err := r.manager.Unvote(ctx, payload.ItemID, conn.GetParticipantName())
	if err != nil {
		return err
	}
	r.broadcast(conn.GetSessionID(), types.EventVoteUpdated, types.VoteUpdatedPayload{ItemID: payload.ItemID, Votes: votes})
	return nil
}

func (r *Relay) changePhase(ctx context.Context, conn interfaces.Connection, env *types.Envelope) error {
	room := conn.GetSessionID()
	phase, err := r.manager.ChangePhase(ctx, conn.GetAdminToken())
	if err != nil {
		return err
	}
	r.broadcast(room, types.EventPhaseChanged, types.PhaseChangedPayload{Phase: phase})

	if phase == types.PhaseClosed {
		snapshot, ok := r.manager.Snapshot(room)
		if ok && snapshot.ClosedAt != nil {
			r.broadcast(room, types.EventClosed, types.ClosedPayload{ClosedAt: *snapshot.ClosedAt})
		}
	}
	return nil
}

func (r *Relay) startTimer(ctx context.Context, conn interfaces.Connection, env *types.Envelope) error {
	var payload types.StartTimerPayload
	if err := env.Decode(&payload); err != nil {
		return errInvalidPayload(env.Type)
	}
	endsAt, err := r.manager.StartTimer(ctx, conn.GetAdminToken(), payload.Duration)
	if err != nil {
		return err
	}
	r.broadcast(conn.GetSessionID(), types.EventTimerStarted, types.TimerStartedPayload{EndsAt: endsAt})
	return nil
}

func (r *Relay) selectBrainstormItems(ctx context.Context, conn interfaces.Connection, env *types.Envelope) error {
	var payload types.SelectBrainstormItemsPayload
	if err := env.Decode(&payload); err != nil {
		return errInvalidPayload(env.Type)
	}
	selected, err := r.manager.SelectBrainstormItems(ctx, conn.GetAdminToken(), payload.ItemIDs)
	if err != nil {
		return err
	}
	r.broadcast(conn.GetSessionID(), types.EventBrainstormItemsSelected, types.BrainstormItemsSelectedPayload{ItemIDs: selected})
	return nil
}

func (r *Relay) addBrainstormComment(ctx context.Context, conn interfaces.Connection, env *types.Envelope) error {
	var payload types.AddBrainstormCommentPayload
	if err := env.Decode(&payload); err != nil {
		return errInvalidPayload(env.Type)
	}
	comment, err := r.manager.AddBrainstormComment(ctx, payload.ItemID, payload.Text, conn.GetParticipantName())
	if err != nil {
		return err
	}
	r.broadcast(conn.GetSessionID(), types.EventBrainstormCommentAdded, comment)
	return nil
}

func (r *Relay) addActionPoint(ctx context.Context, conn interfaces.Connection, env *types.Envelope) error {
	var payload types.AddActionPointPayload
	if err := env.Decode(&payload); err != nil {
		return errInvalidPayload(env.Type)
	}
	point, err := r.manager.AddActionPoint(ctx, payload.Text, payload.Assignee, conn.GetParticipantName(), payload.ItemID)
	if err != nil {
		return err
	}
	r.broadcast(conn.GetSessionID(), types.EventActionPointAdded, point)
	return nil
}

func (r *Relay) assignActionPoint(ctx context.Context, conn interfaces.Connection, env *types.Envelope) error {
	var payload types.AssignActionPointPayload
	if err := env.Decode(&payload); err != nil {
		return errInvalidPayload(env.Type)
	}
	point, err := r.manager.AssignActionPoint(ctx, payload.ActionPointID, payload.Assignee)
	if err != nil {
		return err
	}
	r.broadcast(conn.GetSessionID(), types.EventActionPointUpdated, point)
	return nil
}

// payloadError marks frames whose payload did not decode
type payloadError struct {
	eventType string
}

func (e *payloadError) Error() string {
	return fmt.Sprintf("%s for %s", msgInvalidPayload, e.eventType)
}

func errInvalidPayload(eventType string) error {
	return &payloadError{eventType: eventType}
}

// reportFailure sends err to the sender only; persistence failures are logged too
func (r *Relay) reportFailure(conn interfaces.Connection, eventType string, err error) {
	if errors.Is(err, session.ErrPersistence) {
		log.Printf("Command failed to persist: type=%s conn=%s: %v", eventType, conn.GetID(), err)
	}
	r.sendError(conn, err.Error())
}

// broadcast sends one event to every connection in room. A failed write
// to one member does not stop delivery to the others.
func (r *Relay) broadcast(room, eventType string, payload interface{}) {
	env, err := types.NewEnvelope(eventType, payload)
	if err != nil {
		log.Printf("Failed to encode %s: %v", eventType, err)
		return
	}
	for _, member := range r.registry.RoomConnections(room) {
		if err := member.WriteJSON(env); err != nil {
			log.Printf("Failed to deliver %s to %s: %v", eventType, member.GetID(), err)
		}
	}
}

func (r *Relay) send(conn interfaces.Connection, eventType string, payload interface{}) {
	env, err := types.NewEnvelope(eventType, payload)
	if err != nil {
		log.Printf("Failed to encode %s: %v", eventType, err)
		return
	}
	if err := conn.WriteJSON(env); err != nil {
		log.Printf("Failed to deliver %s to %s: %v", eventType, conn.GetID(), err)
	}
}

func (r *Relay) sendError(conn interfaces.Connection, message string) {
	r.send(conn, types.EventError, types.ErrorPayload{Message: message})
}

// GetStats returns relay statistics for monitoring
func (r *Relay) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"rate_limited_connections": r.rateLimiter.Tracked(),
		"commands_per_minute":      r.rateLimiter.Limit(),
	}
}
