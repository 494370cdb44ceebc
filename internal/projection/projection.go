// Package projection keeps a client-side mirror of the retrospective in sync
// with the event stream. Apply is pure: it returns a new Mirror and never
// modifies the one it was given.
package projection

import (
	"log"

	"retroboard/pkg/types"
)

// Mirror is what a client knows about the session
type Mirror struct {
	Session *types.PublicSession
	Error   string
}

// Clone returns a deep copy of m
func (m Mirror) Clone() Mirror {
	return Mirror{Session: m.Session.Clone(), Error: m.Error}
}

// reducer applies one decoded event to a private copy of the session
type reducer func(s *types.PublicSession, env *types.Envelope) error

var reducers = map[string]reducer{
	types.EventParticipantJoined:       participantJoined,
	types.EventParticipantLeft:         participantLeft,
	types.EventItemAdded:               itemAdded,
	types.EventVoteUpdated:             voteUpdated,
	types.EventPhaseChanged:            phaseChanged,
	types.EventClosed:                  closed,
	types.EventTimerStarted:            timerStarted,
	types.EventBrainstormItemsSelected: brainstormItemsSelected,
	types.EventBrainstormCommentAdded:  brainstormCommentAdded,
	types.EventActionPointAdded:        actionPointAdded,
	types.EventActionPointUpdated:      actionPointUpdated,
}

// Apply folds one event into the mirror. Events other than state and error
// are ignored until the first state has arrived. An event whose payload
// does not decode leaves the mirror unchanged.
func Apply(m Mirror, env *types.Envelope) Mirror {
	if env == nil {
		return m
	}

	switch env.Type {
	case types.EventState:
		var snapshot types.PublicSession
		if err := env.Decode(&snapshot); err != nil {
			log.Printf("Ignoring undecodable state: %v", err)
			return m
		}
		snapshot.Normalize()
		return Mirror{Session: &snapshot, Error: m.Error}

	case types.EventError:
		var payload types.ErrorPayload
		if err := env.Decode(&payload); err != nil {
			return m
		}
		next := m.Clone()
		next.Error = payload.Message
		return next
	}

	reduce, ok := reducers[env.Type]
	if !ok || m.Session == nil {
		return m
	}

	next := m.Clone()
	if err := reduce(next.Session, env); err != nil {
		log.Printf("Ignoring undecodable %s: %v", env.Type, err)
		return m
	}
	return next
}

func participantJoined(s *types.PublicSession, env *types.Envelope) error {
	var p types.Participant
	if err := env.Decode(&p); err != nil {
		return err
	}
	if !s.HasParticipant(p.Name) {
		s.Participants = append(s.Participants, p)
	}
	return nil
}

func participantLeft(s *types.PublicSession, env *types.Envelope) error {
	var payload types.ParticipantLeftPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	kept := make([]types.Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.Name != payload.Name {
			kept = append(kept, p)
		}
	}
	s.Participants = kept
	return nil
}

func itemAdded(s *types.PublicSession, env *types.Envelope) error {
	var item types.RetroItem
	if err := env.Decode(&item); err != nil {
		return err
	}
	if _, exists := s.FindItem(item.ID); !exists {
		if item.Votes == nil {
			item.Votes = []string{}
		}
		s.Items = append(s.Items, item)
	}
	return nil
}

func voteUpdated(s *types.PublicSession, env *types.Envelope) error {
	var payload types.VoteUpdatedPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	if item, ok := s.FindItem(payload.ItemID); ok {
		item.Votes = append([]string{}, payload.Votes...)
	}
	return nil
}

func phaseChanged(s *types.PublicSession, env *types.Envelope) error {
	var payload types.PhaseChangedPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	s.Phase = payload.Phase
	s.TimerEndsAt = nil
	return nil
}

func closed(s *types.PublicSession, env *types.Envelope) error {
	var payload types.ClosedPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	s.Phase = types.PhaseClosed
	closedAt := payload.ClosedAt
	s.ClosedAt = &closedAt
	return nil
}

func timerStarted(s *types.PublicSession, env *types.Envelope) error {
	var payload types.TimerStartedPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	endsAt := payload.EndsAt
	s.TimerEndsAt = &endsAt
	return nil
}

func brainstormItemsSelected(s *types.PublicSession, env *types.Envelope) error {
	var payload types.BrainstormItemsSelectedPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	s.BrainstormItemIDs = append([]string{}, payload.ItemIDs...)
	return nil
}

func brainstormCommentAdded(s *types.PublicSession, env *types.Envelope) error {
	var comment types.BrainstormComment
	if err := env.Decode(&comment); err != nil {
		return err
	}
	for _, existing := range s.BrainstormComments {
		if existing.ID == comment.ID {
			return nil
		}
	}
	s.BrainstormComments = append(s.BrainstormComments, comment)
	return nil
}

func actionPointAdded(s *types.PublicSession, env *types.Envelope) error {
	var point types.ActionPoint
	if err := env.Decode(&point); err != nil {
		return err
	}
	if _, exists := s.FindActionPoint(point.ID); !exists {
		s.ActionPoints = append(s.ActionPoints, point)
	}
	return nil
}

func actionPointUpdated(s *types.PublicSession, env *types.Envelope) error {
	var point types.ActionPoint
	if err := env.Decode(&point); err != nil {
		return err
	}
	if existing, ok := s.FindActionPoint(point.ID); ok {
		*existing = point
	}
	return nil
}
