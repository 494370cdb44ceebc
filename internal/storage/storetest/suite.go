// Package storetest holds the behaviour every SessionStore backend must share.
package storetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"retroboard/pkg/interfaces"
	"retroboard/pkg/types"
)

// ContractSuite runs the same SessionStore checks against every backend.
// NewStore is called once per test.
type ContractSuite struct {
	suite.Suite
	ctx      context.Context
	store    interfaces.SessionStore
	NewStore func() interfaces.SessionStore
	testNow  time.Time
}

func (s *ContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore()
	s.testNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
}

func (s *ContractSuite) TearDownTest() {
	s.store.Close()
}

func (s *ContractSuite) session(id, sprint string) *types.Session {
	return &types.Session{
		PublicSession: types.PublicSession{
			ID:            id,
			SprintName:    sprint,
			Phase:         types.PhaseGoodItems,
			Participants:  []types.Participant{{Name: "Alice", IsAdmin: true, JoinedAt: s.testNow}},
			Items:         []types.RetroItem{{ID: "i1", Text: "Great sprint", Author: "Alice", Votes: []string{}, Category: types.CategoryGood, CreatedAt: s.testNow}},
			TimerDuration: 300,
			CreatedAt:     s.testNow,
		},
		AdminToken: "token-" + id,
	}
}

func (s *ContractSuite) closed(session *types.Session) *types.Session {
	closedAt := s.testNow.Add(time.Hour)
	session.Phase = types.PhaseClosed
	session.ClosedAt = &closedAt
	return session
}

func (s *ContractSuite) TestLoadActive_Empty() {
	_, err := s.store.LoadActive(s.ctx)
	s.ErrorIs(err, interfaces.ErrSessionNotFound)
}

func (s *ContractSuite) TestSaveAndLoadActive() {
	original := s.session("abcd1234", "Sprint 12")
	s.Require().NoError(s.store.SaveActive(s.ctx, original))

	loaded, err := s.store.LoadActive(s.ctx)
	s.Require().NoError(err)
	s.Equal("abcd1234", loaded.ID)
	s.Equal("Sprint 12", loaded.SprintName)
	s.Equal("token-abcd1234", loaded.AdminToken)
	s.Equal(types.PhaseGoodItems, loaded.Phase)
	s.Require().Len(loaded.Items, 1)
	s.Equal("Great sprint", loaded.Items[0].Text)
	s.True(loaded.CreatedAt.Equal(s.testNow))
	s.Nil(loaded.TimerEndsAt)
}

func (s *ContractSuite) TestSaveActive_LastWriteWins() {
	first := s.session("abcd1234", "Sprint 12")
	s.Require().NoError(s.store.SaveActive(s.ctx, first))

	second := first.Clone()
	second.Phase = types.PhaseGoodVoting
	second.Items[0].Votes = []string{"Bob"}
	s.Require().NoError(s.store.SaveActive(s.ctx, second))

	loaded, err := s.store.LoadActive(s.ctx)
	s.Require().NoError(err)
	s.Equal(types.PhaseGoodVoting, loaded.Phase)
	s.Equal([]string{"Bob"}, loaded.Items[0].Votes)
}

func (s *ContractSuite) TestClearActive_Idempotent() {
	s.Require().NoError(s.store.SaveActive(s.ctx, s.session("abcd1234", "Sprint 12")))
	s.Require().NoError(s.store.ClearActive(s.ctx))
	s.Require().NoError(s.store.ClearActive(s.ctx))

	_, err := s.store.LoadActive(s.ctx)
	s.ErrorIs(err, interfaces.ErrSessionNotFound)
}

func (s *ContractSuite) TestArchive_FindableAndListed() {
	session := s.closed(s.session("abcd1234", "Sprint 12"))
	s.Require().NoError(s.store.Archive(s.ctx, session))

	found, err := s.store.FindByID(s.ctx, "abcd1234")
	s.Require().NoError(err)
	s.Equal(types.PhaseClosed, found.Phase)
	s.Require().NotNil(found.ClosedAt)

	summaries, err := s.store.ListArchived(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(summaries, 1)
	s.Equal("abcd1234", summaries[0].ID)
	s.Equal("Sprint 12", summaries[0].SprintName)
	s.Equal("2026-10-19T09:30:00.000Z", summaries[0].Date)
	s.Equal("retro-abcd1234-Sprint_12-2026-10-19.json", summaries[0].File)
}

func (s *ContractSuite) TestArchive_SameSprintNameDoesNotCollide() {
	s.Require().NoError(s.store.Archive(s.ctx, s.closed(s.session("aaaa1111", "Sprint 12"))))
	s.Require().NoError(s.store.Archive(s.ctx, s.closed(s.session("bbbb2222", "Sprint 12"))))

	summaries, err := s.store.ListArchived(s.ctx)
	s.Require().NoError(err)
	s.Len(summaries, 2)

	for _, id := range []string{"aaaa1111", "bbbb2222"} {
		found, err := s.store.FindByID(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(id, found.ID)
	}
}

func (s *ContractSuite) TestArchive_RearchiveReplaces() {
	session := s.closed(s.session("abcd1234", "Sprint 12"))
	s.Require().NoError(s.store.Archive(s.ctx, session))

	later := session.Clone()
	closedAt := s.testNow.Add(48 * time.Hour)
	later.ClosedAt = &closedAt
	s.Require().NoError(s.store.Archive(s.ctx, later))

	summaries, err := s.store.ListArchived(s.ctx)
	s.Require().NoError(err)
	s.Len(summaries, 1)
}

func (s *ContractSuite) TestFindByID_ActiveFirst() {
	s.Require().NoError(s.store.SaveActive(s.ctx, s.session("abcd1234", "Sprint 12")))

	found, err := s.store.FindByID(s.ctx, "abcd1234")
	s.Require().NoError(err)
	s.Equal(types.PhaseGoodItems, found.Phase)

	_, err = s.store.FindByID(s.ctx, "missing0")
	s.ErrorIs(err, interfaces.ErrSessionNotFound)
}

func (s *ContractSuite) TestArchiveThenClear_FreesActiveSlot() {
	session := s.session("abcd1234", "Sprint 12")
	s.Require().NoError(s.store.SaveActive(s.ctx, session))

	s.Require().NoError(s.store.Archive(s.ctx, s.closed(session.Clone())))
	s.Require().NoError(s.store.ClearActive(s.ctx))

	_, err := s.store.LoadActive(s.ctx)
	s.ErrorIs(err, interfaces.ErrSessionNotFound)

	found, err := s.store.FindByID(s.ctx, "abcd1234")
	s.Require().NoError(err)
	s.Equal(types.PhaseClosed, found.Phase)
}

func (s *ContractSuite) TestCloseActive_ArchivesAndFreesSlot() {
	session := s.session("abcd1234", "Sprint 12")
	s.Require().NoError(s.store.SaveActive(s.ctx, session))

	s.Require().NoError(s.store.CloseActive(s.ctx, s.closed(session.Clone())))

	_, err := s.store.LoadActive(s.ctx)
	s.ErrorIs(err, interfaces.ErrSessionNotFound)

	summaries, err := s.store.ListArchived(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(summaries, 1)
	s.Equal("abcd1234", summaries[0].ID)

	found, err := s.store.FindByID(s.ctx, "abcd1234")
	s.Require().NoError(err)
	s.Equal(types.PhaseClosed, found.Phase)
	s.Require().NotNil(found.ClosedAt)
}

func (s *ContractSuite) TestHealthCheck() {
	s.NoError(s.store.HealthCheck(s.ctx))
}
