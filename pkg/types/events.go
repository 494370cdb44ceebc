package types

import (
	"encoding/json"
	"time"
)

// Inbound command types sent by clients over the event stream.
const (
	CommandJoin                  = "retro:join"
	CommandAddItem               = "retro:add-item"
	CommandVote                  = "retro:vote"
	CommandUnvote                = "retro:unvote"
	CommandChangePhase           = "retro:change-phase"
	CommandStartTimer            = "retro:start-timer"
	CommandSelectBrainstormItems = "retro:select-brainstorm-items"
	CommandAddBrainstormComment  = "retro:add-brainstorm-comment"
	CommandAddActionPoint        = "retro:add-action-point"
	CommandAssignActionPoint     = "retro:assign-action-point"
)

// Outbound notification types broadcast to a room (or, for state and
// error, sent to a single connection).
const (
	EventState                   = "retro:state"
	EventParticipantJoined       = "retro:participant-joined"
	EventParticipantLeft         = "retro:participant-left"
	EventItemAdded               = "retro:item-added"
	EventVoteUpdated             = "retro:vote-updated"
	EventPhaseChanged            = "retro:phase-changed"
	EventClosed                  = "retro:closed"
	EventTimerStarted            = "retro:timer-started"
	EventBrainstormItemsSelected = "retro:brainstorm-items-selected"
	EventBrainstormCommentAdded  = "retro:brainstorm-comment-added"
	EventActionPointAdded        = "retro:action-point-added"
	EventActionPointUpdated      = "retro:action-point-updated"
	EventError                   = "retro:error"
)

// Envelope is the frame exchanged in both directions on a connection.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(eventType string, payload interface{}) (*Envelope, error) {
	env := &Envelope{Type: eventType}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	env.Payload = data
	return env, nil
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (e *Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Command payloads.

type JoinPayload struct {
	RetroID         string `json:"retroId"`
	ParticipantName string `json:"participantName"`
	AdminToken      string `json:"adminToken,omitempty"`
}

type AddItemPayload struct {
	Text     string   `json:"text"`
	Category Category `json:"category"`
}

type ItemRefPayload struct {
	ItemID string `json:"itemId"`
}

type StartTimerPayload struct {
	Duration int `json:"duration"`
}

type SelectBrainstormItemsPayload struct {
	ItemIDs []string `json:"itemIds"`
}

type AddBrainstormCommentPayload struct {
	ItemID string `json:"itemId"`
	Text   string `json:"text"`
}

type AddActionPointPayload struct {
	Text     string `json:"text"`
	Assignee string `json:"assignee"`
	ItemID   string `json:"itemId"`
}

type AssignActionPointPayload struct {
	ActionPointID string `json:"actionPointId"`
	Assignee      string `json:"assignee"`
}

// Notification payloads that are not plain domain entities.

type ParticipantLeftPayload struct {
	Name string `json:"name"`
}

type VoteUpdatedPayload struct {
	ItemID string   `json:"itemId"`
	Votes  []string `json:"votes"`
}

type PhaseChangedPayload struct {
	Phase Phase `json:"phase"`
}

type ClosedPayload struct {
	ClosedAt time.Time `json:"closedAt"`
}

type TimerStartedPayload struct {
	EndsAt time.Time `json:"endsAt"`
}

type BrainstormItemsSelectedPayload struct {
	ItemIDs []string `json:"itemIds"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
