package types

import (
	"time"
)

// Phase is one stage of a retrospective. Phases are totally ordered and a
// session only ever moves to the immediate successor.
type Phase string

const (
	PhaseLobby         Phase = "lobby"
	PhaseGoodItems     Phase = "good_items"
	PhaseGoodVoting    Phase = "good_voting"
	PhaseImproveItems  Phase = "improve_items"
	PhaseImproveVoting Phase = "improve_voting"
	PhaseBrainstorming Phase = "brainstorming"
	PhaseActionPoints  Phase = "action_points"
	PhaseClosed        Phase = "closed"
)

// PhaseOrder lists every phase from first to last.
var PhaseOrder = []Phase{
	PhaseLobby,
	PhaseGoodItems,
	PhaseGoodVoting,
	PhaseImproveItems,
	PhaseImproveVoting,
	PhaseBrainstorming,
	PhaseActionPoints,
	PhaseClosed,
}

var phaseLabels = map[Phase]string{
	PhaseLobby:         "Lobby",
	PhaseGoodItems:     "What Went Well",
	PhaseGoodVoting:    "Vote: What Went Well",
	PhaseImproveItems:  "What Could Be Better",
	PhaseImproveVoting: "Vote: What Could Be Better",
	PhaseBrainstorming: "Brainstorming",
	PhaseActionPoints:  "Action Points",
	PhaseClosed:        "Retro Closed",
}

var nextPhaseLabels = map[Phase]string{
	PhaseLobby:         "Start: What Went Well",
	PhaseGoodItems:     "Start Voting: What Went Well",
	PhaseGoodVoting:    "Start: What Could Be Better",
	PhaseImproveItems:  "Start Voting: What Could Be Better",
	PhaseImproveVoting: "Start Brainstorming",
	PhaseBrainstorming: "Move to Action Points",
	PhaseActionPoints:  "Close Retrospective",
}

// Index returns the position of p in PhaseOrder, or -1 for unknown phases.
func (p Phase) Index() int {
	for i, phase := range PhaseOrder {
		if phase == p {
			return i
		}
	}
	return -1
}

// Next returns the immediate successor of p. ok is false for the last
// phase and for unknown phases.
func (p Phase) Next() (next Phase, ok bool) {
	i := p.Index()
	if i < 0 || i >= len(PhaseOrder)-1 {
		return "", false
	}
	return PhaseOrder[i+1], true
}

// IsVoting reports whether votes may be cast in p.
func (p Phase) IsVoting() bool {
	return p == PhaseGoodVoting || p == PhaseImproveVoting
}

// IsItemCollection reports whether items may be submitted in p.
func (p Phase) IsItemCollection() bool {
	return p == PhaseGoodItems || p == PhaseImproveItems
}

// Label is the human readable phase title.
func (p Phase) Label() string {
	return phaseLabels[p]
}

// NextLabel describes the action that advances out of p.
func (p Phase) NextLabel() string {
	return nextPhaseLabels[p]
}

// Category separates the two item columns of a retrospective.
type Category string

const (
	CategoryGood    Category = "good"
	CategoryImprove Category = "improve"
)

// CollectionPhase is the only phase in which items of category c are accepted.
func (c Category) CollectionPhase() Phase {
	if c == CategoryImprove {
		return PhaseImproveItems
	}
	return PhaseGoodItems
}

// SectionLabel is the report heading for items of category c.
func (c Category) SectionLabel() string {
	if c == CategoryImprove {
		return "What Could Be Better"
	}
	return "What Went Well"
}

// Participant is a named member of the session roster.
type Participant struct {
	Name     string    `json:"name"`
	IsAdmin  bool      `json:"isAdmin"`
	JoinedAt time.Time `json:"joinedAt"`
}

// RetroItem is a single card submitted during an item collection phase.
// Votes keeps insertion order but holds each voter at most once.
type RetroItem struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Votes     []string  `json:"votes"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasVote reports whether voter already voted for the item.
func (i *RetroItem) HasVote(voter string) bool {
	for _, v := range i.Votes {
		if v == voter {
			return true
		}
	}
	return false
}

// BrainstormComment is a note attached to a selected improve item.
type BrainstormComment struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"itemId"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// ActionPoint is a follow-up task. Only Assignee changes after creation.
type ActionPoint struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Assignee  string `json:"assignee"`
	CreatedBy string `json:"createdBy"`
	ItemID    string `json:"itemId"`
}

// PublicSession is the snapshot sent to clients. It never carries the
// admin secret.
type PublicSession struct {
	ID                 string              `json:"id"`
	SprintName         string              `json:"sprintName"`
	Phase              Phase               `json:"phase"`
	Participants       []Participant       `json:"participants"`
	Items              []RetroItem         `json:"items"`
	BrainstormComments []BrainstormComment `json:"brainstormComments"`
	BrainstormItemIDs  []string            `json:"brainstormItemIds"`
	ActionPoints       []ActionPoint       `json:"actionPoints"`
	TimerDuration      int                 `json:"timerDuration"`
	TimerEndsAt        *time.Time          `json:"timerEndsAt"`
	CreatedAt          time.Time           `json:"createdAt"`
	ClosedAt           *time.Time          `json:"closedAt"`
}

// Session is the single retrospective aggregate, admin secret included.
// This is the shape persisted by every SessionStore backend.
type Session struct {
	PublicSession
	AdminToken string `json:"adminToken"`
}

// Credentials are returned to the creator of a session.
type Credentials struct {
	RetroID    string `json:"retroId"`
	AdminToken string `json:"adminToken"`
}

// ArchiveSummary describes one archived session.
type ArchiveSummary struct {
	ID         string `json:"id"`
	SprintName string `json:"sprintName"`
	Date       string `json:"date"`
	File       string `json:"file"`
}

// IsClosed reports whether the session reached its terminal phase.
func (s *PublicSession) IsClosed() bool {
	return s.Phase == PhaseClosed
}

// FindItem returns the item with the given id.
func (s *PublicSession) FindItem(id string) (*RetroItem, bool) {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return &s.Items[i], true
		}
	}
	return nil, false
}

// FindActionPoint returns the action point with the given id.
func (s *PublicSession) FindActionPoint(id string) (*ActionPoint, bool) {
	for i := range s.ActionPoints {
		if s.ActionPoints[i].ID == id {
			return &s.ActionPoints[i], true
		}
	}
	return nil, false
}

// HasParticipant reports whether name is on the roster.
func (s *PublicSession) HasParticipant(name string) bool {
	for _, p := range s.Participants {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the snapshot.
func (s *PublicSession) Clone() *PublicSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Participants = append([]Participant{}, s.Participants...)
	c.Items = make([]RetroItem, len(s.Items))
	for i, item := range s.Items {
		item.Votes = append([]string{}, item.Votes...)
		c.Items[i] = item
	}
	c.BrainstormComments = append([]BrainstormComment{}, s.BrainstormComments...)
	c.BrainstormItemIDs = append([]string{}, s.BrainstormItemIDs...)
	c.ActionPoints = append([]ActionPoint{}, s.ActionPoints...)
	if s.TimerEndsAt != nil {
		t := *s.TimerEndsAt
		c.TimerEndsAt = &t
	}
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	return &Session{
		PublicSession: *s.PublicSession.Clone(),
		AdminToken:    s.AdminToken,
	}
}

// Public strips the admin secret.
func (s *Session) Public() *PublicSession {
	if s == nil {
		return nil
	}
	return s.PublicSession.Clone()
}

// Normalize replaces nil collections with empty ones so snapshots always
// encode lists as [] rather than null.
func (s *PublicSession) Normalize() {
	if s.Participants == nil {
		s.Participants = []Participant{}
	}
	if s.Items == nil {
		s.Items = []RetroItem{}
	}
	for i := range s.Items {
		if s.Items[i].Votes == nil {
			s.Items[i].Votes = []string{}
		}
	}
	if s.BrainstormComments == nil {
		s.BrainstormComments = []BrainstormComment{}
	}
	if s.BrainstormItemIDs == nil {
		s.BrainstormItemIDs = []string{}
	}
	if s.ActionPoints == nil {
		s.ActionPoints = []ActionPoint{}
	}
}
