package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"retroboard/internal/clock/mocks"
	idMocks "retroboard/internal/ids/mocks"
	"retroboard/internal/storage"
	"retroboard/pkg/interfaces"
	"retroboard/pkg/types"
)

// faultyStore wraps the memory store and fails selected writes
type faultyStore struct {
	*storage.MemoryStore
	failSave  bool
	failClose bool
}

var errDiskFull = errors.New("disk full")

func (f *faultyStore) SaveActive(ctx context.Context, s *types.Session) error {
	if f.failSave {
		return errDiskFull
	}
	return f.MemoryStore.SaveActive(ctx, s)
}

func (f *faultyStore) CloseActive(ctx context.Context, s *types.Session) error {
	if f.failClose {
		return errDiskFull
	}
	return f.MemoryStore.CloseActive(ctx, s)
}

type ManagerTestSuite struct {
	suite.Suite
	mockCtrl  *gomock.Controller
	mockClock *mocks.MockClock
	mockIDs   *idMocks.MockGenerator
	store     *faultyStore
	manager   *Manager
	ctx       context.Context

	testTime  time.Time
	nextID    int
	adminCred *types.Credentials
}

func (s *ManagerTestSuite) SetupTest() {
	s.mockCtrl = gomock.NewController(s.T())
	s.mockClock = mocks.NewMockClock(s.mockCtrl)
	s.mockIDs = idMocks.NewMockGenerator(s.mockCtrl)
	s.store = &faultyStore{MemoryStore: storage.NewMemoryStore()}
	s.ctx = context.Background()

	s.testTime = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	s.nextID = 0

	s.mockClock.EXPECT().Now().Return(s.testTime).AnyTimes()
	s.mockIDs.EXPECT().NewID().DoAndReturn(func() string {
		s.nextID++
		return fmt.Sprintf("id%06d", s.nextID)
	}).AnyTimes()
	s.mockIDs.EXPECT().NewSecret().Return("admin-secret").AnyTimes()

	s.manager = NewManager(s.store, WithClock(s.mockClock), WithIDGenerator(s.mockIDs))
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

// create starts a session and registers Alice as admin
func (s *ManagerTestSuite) create() {
	cred, err := s.manager.CreateSession(s.ctx, "Sprint 12", 300)
	s.Require().NoError(err)
	s.adminCred = cred

	_, err = s.manager.AddParticipant(s.ctx, "Alice", true)
	s.Require().NoError(err)
}

// advanceTo walks the session forward until it reaches phase
func (s *ManagerTestSuite) advanceTo(phase types.Phase) {
	for s.manager.PublicSession().Phase != phase {
		_, err := s.manager.ChangePhase(s.ctx, s.adminCred.AdminToken)
		s.Require().NoError(err)
	}
}

func (s *ManagerTestSuite) addItem(phase types.Phase, text string, category types.Category) string {
	s.advanceTo(phase)
	item, err := s.manager.AddItem(s.ctx, text, "Alice", category)
	s.Require().NoError(err)
	return item.ID
}

// Functional Validation Tests - Creation

func (s *ManagerTestSuite) TestCreateSession() {
	cred, err := s.manager.CreateSession(s.ctx, "Sprint 12", 300)
	s.Require().NoError(err)
	s.Equal("id000001", cred.RetroID)
	s.Equal("admin-secret", cred.AdminToken)

	snapshot := s.manager.PublicSession()
	s.Require().NotNil(snapshot)
	s.Equal(types.PhaseLobby, snapshot.Phase)
	s.Equal(300, snapshot.TimerDuration)
	s.True(snapshot.CreatedAt.Equal(s.testTime))
	s.Empty(snapshot.Participants)
	s.NotNil(snapshot.Items)

	stored, err := s.store.LoadActive(s.ctx)
	s.Require().NoError(err)
	s.Equal(cred.RetroID, stored.ID)
	s.Equal("admin-secret", stored.AdminToken)
}

func (s *ManagerTestSuite) TestCreateSession_DefaultTimer() {
	_, err := s.manager.CreateSession(s.ctx, "Sprint 12", 0)
	s.Require().NoError(err)
	s.Equal(DefaultTimerDuration, s.manager.PublicSession().TimerDuration)
}

func (s *ManagerTestSuite) TestCreateSession_ConfiguredDefaultTimer() {
	m := NewManager(s.store, WithClock(s.mockClock), WithIDGenerator(s.mockIDs), WithDefaultTimerDuration(600))
	_, err := m.CreateSession(s.ctx, "Sprint 12", -5)
	s.Require().NoError(err)
	s.Equal(600, m.PublicSession().TimerDuration)
}

func (s *ManagerTestSuite) TestCreateSession_InvalidName() {
	_, err := s.manager.CreateSession(s.ctx, "  ", 300)
	s.ErrorIs(err, ErrInvalidInput)
	s.ErrorIs(err, types.ErrInvalidSprintName)
	s.Nil(s.manager.PublicSession())
}

func (s *ManagerTestSuite) TestCreateSession_ConflictWhileActive() {
	s.create()

	_, err := s.manager.CreateSession(s.ctx, "Sprint 13", 300)
	s.ErrorIs(err, ErrConflict)
	s.Equal("Sprint 12", s.manager.PublicSession().SprintName)
}

func (s *ManagerTestSuite) TestCreateSession_PersistenceFailure() {
	s.store.failSave = true

	_, err := s.manager.CreateSession(s.ctx, "Sprint 12", 300)
	s.ErrorIs(err, ErrPersistence)
	s.ErrorIs(err, errDiskFull)
	s.Nil(s.manager.PublicSession())
}

// Functional Validation Tests - Admin token

func (s *ManagerTestSuite) TestIsAdminToken() {
	s.False(s.manager.IsAdminToken("admin-secret"), "no session yet")

	s.create()
	s.True(s.manager.IsAdminToken("admin-secret"))
	s.False(s.manager.IsAdminToken("admin-secreT"))
	s.False(s.manager.IsAdminToken(""))
}

// Functional Validation Tests - Participants

func (s *ManagerTestSuite) TestAddParticipant() {
	s.create()

	p, err := s.manager.AddParticipant(s.ctx, "Bob", false)
	s.Require().NoError(err)
	s.Equal("Bob", p.Name)
	s.False(p.IsAdmin)
	s.True(p.JoinedAt.Equal(s.testTime))

	snapshot := s.manager.PublicSession()
	s.Require().Len(snapshot.Participants, 2)
	s.Equal("Alice", snapshot.Participants[0].Name)
	s.True(snapshot.Participants[0].IsAdmin)
	s.Equal("Bob", snapshot.Participants[1].Name)
}

func (s *ManagerTestSuite) TestAddParticipant_Duplicate() {
	s.create()

	_, err := s.manager.AddParticipant(s.ctx, "Alice", false)
	s.ErrorIs(err, ErrConflict)
	s.Len(s.manager.PublicSession().Participants, 1)

	_, err = s.manager.AddParticipant(s.ctx, "alice", false)
	s.NoError(err, "names are case-sensitive")
}

func (s *ManagerTestSuite) TestAddParticipant_AllowedInEveryOpenPhase() {
	s.create()
	for i, phase := range types.PhaseOrder[:len(types.PhaseOrder)-1] {
		s.advanceTo(phase)
		_, err := s.manager.AddParticipant(s.ctx, fmt.Sprintf("late-%d", i), false)
		s.NoError(err, "phase %s", phase)
	}

	s.advanceTo(types.PhaseClosed)
	_, err := s.manager.AddParticipant(s.ctx, "too-late", false)
	s.ErrorIs(err, ErrState)
	s.EqualError(err, "retro is closed")
}

func (s *ManagerTestSuite) TestAddParticipant_NoSession() {
	_, err := s.manager.AddParticipant(s.ctx, "Alice", false)
	s.ErrorIs(err, ErrNotFound)
}

func (s *ManagerTestSuite) TestAddParticipant_InvalidName() {
	s.create()
	_, err := s.manager.AddParticipant(s.ctx, "", false)
	s.ErrorIs(err, ErrInvalidInput)
}

func (s *ManagerTestSuite) TestRemoveParticipant_Idempotent() {
	s.NoError(s.manager.RemoveParticipant(s.ctx, "Alice"), "no session")

	s.create()
	s.Require().NoError(s.manager.RemoveParticipant(s.ctx, "Alice"))
	s.False(s.manager.HasParticipant("Alice"))
	s.NoError(s.manager.RemoveParticipant(s.ctx, "Alice"))
	s.NoError(s.manager.RemoveParticipant(s.ctx, "Nobody"))
}

// Functional Validation Tests - Phase changes

func (s *ManagerTestSuite) TestChangePhase_WalksAllPhases() {
	s.create()

	transitions := 0
	for {
		phase, err := s.manager.ChangePhase(s.ctx, "admin-secret")
		if err != nil {
			s.ErrorIs(err, ErrState)
			break
		}
		transitions++
		s.Equal(types.PhaseOrder[transitions], phase)
	}

	s.Equal(7, transitions)
	s.Equal(types.PhaseClosed, s.manager.PublicSession().Phase)
}

func (s *ManagerTestSuite) TestChangePhase_NonAdminRejectedInEveryPhase() {
	s.create()

	for _, phase := range types.PhaseOrder {
		s.advanceTo(phase)
		for _, token := range []string{"", "wrong"} {
			_, err := s.manager.ChangePhase(s.ctx, token)
			s.ErrorIs(err, ErrAuth, "phase %s", phase)

			_, err = s.manager.StartTimer(s.ctx, token, 60)
			s.ErrorIs(err, ErrAuth, "phase %s", phase)

			_, err = s.manager.SelectBrainstormItems(s.ctx, token, nil)
			s.ErrorIs(err, ErrAuth, "phase %s", phase)
		}
		s.Equal(phase, s.manager.PublicSession().Phase)
	}
}

func (s *ManagerTestSuite) TestChangePhase_NoSession() {
	_, err := s.manager.ChangePhase(s.ctx, "admin-secret")
	s.ErrorIs(err, ErrNotFound)
}

func (s *ManagerTestSuite) TestChangePhase_ClearsTimer() {
	s.create()
	_, err := s.manager.StartTimer(s.ctx, "admin-secret", 60)
	s.Require().NoError(err)
	s.NotNil(s.manager.PublicSession().TimerEndsAt)

	_, err = s.manager.ChangePhase(s.ctx, "admin-secret")
	s.Require().NoError(err)
	s.Nil(s.manager.PublicSession().TimerEndsAt)
}

func (s *ManagerTestSuite) TestChangePhase_CloseArchivesAndFreesSlot() {
	s.create()
	s.advanceTo(types.PhaseClosed)

	snapshot := s.manager.PublicSession()
	s.Require().NotNil(snapshot.ClosedAt)
	s.True(snapshot.ClosedAt.Equal(s.testTime))
	s.Nil(s.manager.ActiveSnapshot())

	_, err := s.store.LoadActive(s.ctx)
	s.ErrorIs(err, interfaces.ErrSessionNotFound)

	archived, err := s.store.FindByID(s.ctx, s.adminCred.RetroID)
	s.Require().NoError(err)
	s.Equal(types.PhaseClosed, archived.Phase)

	summaries, err := s.store.ListArchived(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(summaries, 1)
	s.Equal(s.adminCred.RetroID, summaries[0].ID)

	cred, err := s.manager.CreateSession(s.ctx, "Sprint 13", 300)
	s.Require().NoError(err)
	s.NotEqual(s.adminCred.RetroID, cred.RetroID)
}

func (s *ManagerTestSuite) TestChangePhase_ArchiveFailureKeepsSession() {
	s.create()
	s.advanceTo(types.PhaseActionPoints)

	s.store.failClose = true
	_, err := s.manager.ChangePhase(s.ctx, "admin-secret")
	s.ErrorIs(err, ErrPersistence)
	s.Equal(types.PhaseActionPoints, s.manager.PublicSession().Phase)
	s.Nil(s.manager.PublicSession().ClosedAt)

	archived, err := s.store.ListArchived(s.ctx)
	s.Require().NoError(err)
	s.Empty(archived, "a failed close must not leave an archive behind")

	active, err := s.store.LoadActive(s.ctx)
	s.Require().NoError(err)
	s.Equal(types.PhaseActionPoints, active.Phase)
	s.Nil(active.ClosedAt)

	s.store.failClose = false
	phase, err := s.manager.ChangePhase(s.ctx, "admin-secret")
	s.Require().NoError(err)
	s.Equal(types.PhaseClosed, phase)

	archived, err = s.store.ListArchived(s.ctx)
	s.Require().NoError(err)
	s.Len(archived, 1)
	_, err = s.store.LoadActive(s.ctx)
	s.ErrorIs(err, interfaces.ErrSessionNotFound)
}

// Functional Validation Tests - Items

func (s *ManagerTestSuite) TestAddItem_PhaseGate() {
	s.create()

	for _, phase := range types.PhaseOrder {
		s.advanceTo(phase)
		for _, category := range []types.Category{types.CategoryGood, types.CategoryImprove} {
			_, err := s.manager.AddItem(s.ctx, "text", "Alice", category)
			if phase == category.CollectionPhase() {
				s.NoError(err, "phase %s category %s", phase, category)
			} else {
				s.ErrorIs(err, ErrState, "phase %s category %s", phase, category)
			}
		}
	}

	s.Len(s.manager.PublicSession().Items, 2)
}

func (s *ManagerTestSuite) TestAddItem_Validation() {
	s.create()
	s.advanceTo(types.PhaseGoodItems)

	_, err := s.manager.AddItem(s.ctx, "   ", "Alice", types.CategoryGood)
	s.ErrorIs(err, ErrInvalidInput)

	_, err = s.manager.AddItem(s.ctx, "text", "Alice", types.Category("meh"))
	s.ErrorIs(err, ErrInvalidInput)
	s.Empty(s.manager.PublicSession().Items)
}

func (s *ManagerTestSuite) TestAddItem_PersistenceFailureLeavesStateUntouched() {
	s.create()
	s.advanceTo(types.PhaseGoodItems)

	s.store.failSave = true
	_, err := s.manager.AddItem(s.ctx, "Great sprint", "Alice", types.CategoryGood)
	s.ErrorIs(err, ErrPersistence)
	s.Empty(s.manager.PublicSession().Items)

	stored, err := s.store.LoadActive(s.ctx)
	s.Require().NoError(err)
	s.Empty(stored.Items)
}

// Functional Validation Tests - Voting

func (s *ManagerTestSuite) TestVote() {
	s.create()
	itemID := s.addItem(types.PhaseGoodItems, "Great sprint", types.CategoryGood)
	s.advanceTo(types.PhaseGoodVoting)

	votes, err := s.manager.Vote(s.ctx, itemID, "Bob")
	s.Require().NoError(err)
	s.Equal([]string{"Bob"}, votes)

	_, err = s.manager.Vote(s.ctx, itemID, "Bob")
	s.ErrorIs(err, ErrConflict)

	item, _ := s.manager.PublicSession().FindItem(itemID)
	s.Equal([]string{"Bob"}, item.Votes)
}

func (s *ManagerTestSuite) TestVote_OutsideVotingPhase() {
	s.create()
	itemID := s.addItem(types.PhaseGoodItems, "Great sprint", types.CategoryGood)

	_, err := s.manager.Vote(s.ctx, itemID, "Bob")
	s.ErrorIs(err, ErrState)
	_, err = s.manager.Unvote(s.ctx, itemID, "Bob")
	s.ErrorIs(err, ErrState)
}

func (s *ManagerTestSuite) TestVote_UnknownItem() {
	s.create()
	s.advanceTo(types.PhaseGoodVoting)

	_, err := s.manager.Vote(s.ctx, "missing", "Bob")
	s.ErrorIs(err, ErrNotFound)
}

func (s *ManagerTestSuite) TestUnvote_Idempotent() {
	s.create()
	itemID := s.addItem(types.PhaseGoodItems, "Great sprint", types.CategoryGood)
	s.advanceTo(types.PhaseGoodVoting)

	_, err := s.manager.Vote(s.ctx, itemID, "Alice")
	s.Require().NoError(err)
	_, err = s.manager.Vote(s.ctx, itemID, "Bob")
	s.Require().NoError(err)

	votes, err := s.manager.Unvote(s.ctx, itemID, "Alice")
	s.Require().NoError(err)
	s.Equal([]string{"Bob"}, votes)

	votes, err = s.manager.Unvote(s.ctx, itemID, "Alice")
	s.Require().NoError(err)
	s.Equal([]string{"Bob"}, votes)
}

func (s *ManagerTestSuite) TestVote_ConcurrentVotersAllCounted() {
	s.create()
	itemID := s.addItem(types.PhaseGoodItems, "Great sprint", types.CategoryGood)
	s.advanceTo(types.PhaseGoodVoting)

	const voters = 50
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.manager.Vote(s.ctx, itemID, fmt.Sprintf("voter-%d", i))
		}(i)
	}
	wg.Wait()

	item, _ := s.manager.PublicSession().FindItem(itemID)
	s.Len(item.Votes, voters)
}

func (s *ManagerTestSuite) TestVote_ConcurrentDoubleVoteCountsOnce() {
	s.create()
	itemID := s.addItem(types.PhaseGoodItems, "Great sprint", types.CategoryGood)
	s.advanceTo(types.PhaseGoodVoting)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.manager.Vote(s.ctx, itemID, "Bob"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, successes)
	item, _ := s.manager.PublicSession().FindItem(itemID)
	s.Equal([]string{"Bob"}, item.Votes)
}

// Functional Validation Tests - Timer

func (s *ManagerTestSuite) TestStartTimer() {
	s.create()

	endsAt, err := s.manager.StartTimer(s.ctx, "admin-secret", 120)
	s.Require().NoError(err)
	s.True(endsAt.Equal(s.testTime.Add(2 * time.Minute)))

	snapshot := s.manager.PublicSession()
	s.Equal(120, snapshot.TimerDuration)
	s.Require().NotNil(snapshot.TimerEndsAt)
	s.True(snapshot.TimerEndsAt.Equal(endsAt))

	_, err = s.manager.StartTimer(s.ctx, "admin-secret", 0)
	s.ErrorIs(err, ErrInvalidInput)
}

func (s *ManagerTestSuite) TestStartTimer_ClosedSession() {
	s.create()
	s.advanceTo(types.PhaseClosed)

	_, err := s.manager.StartTimer(s.ctx, "admin-secret", 60)
	s.ErrorIs(err, ErrState)
}

// Functional Validation Tests - Brainstorming

func (s *ManagerTestSuite) TestSelectBrainstormItems_Atomic() {
	s.create()
	goodID := s.addItem(types.PhaseGoodItems, "Great sprint", types.CategoryGood)
	improveA := s.addItem(types.PhaseImproveItems, "Too many meetings", types.CategoryImprove)
	improveB, err := s.manager.AddItem(s.ctx, "Flaky CI", "Bob", types.CategoryImprove)
	s.Require().NoError(err)
	s.advanceTo(types.PhaseBrainstorming)

	selected, err := s.manager.SelectBrainstormItems(s.ctx, "admin-secret", []string{improveA})
	s.Require().NoError(err)
	s.Equal([]string{improveA}, selected)

	_, err = s.manager.SelectBrainstormItems(s.ctx, "admin-secret", []string{improveB.ID, goodID})
	s.ErrorIs(err, ErrNotFound)
	s.Equal([]string{improveA}, s.manager.PublicSession().BrainstormItemIDs)

	_, err = s.manager.SelectBrainstormItems(s.ctx, "admin-secret", []string{improveB.ID, "missing"})
	s.ErrorIs(err, ErrNotFound)
	s.Equal([]string{improveA}, s.manager.PublicSession().BrainstormItemIDs)

	selected, err = s.manager.SelectBrainstormItems(s.ctx, "admin-secret", []string{improveB.ID})
	s.Require().NoError(err)
	s.Equal([]string{improveB.ID}, s.manager.PublicSession().BrainstormItemIDs, "selection is replaced wholesale")
	s.Equal([]string{improveB.ID}, selected)
}

func (s *ManagerTestSuite) TestAddBrainstormComment() {
	s.create()
	itemID := s.addItem(types.PhaseImproveItems, "Too many meetings", types.CategoryImprove)

	_, err := s.manager.AddBrainstormComment(s.ctx, itemID, "No-meeting Fridays", "Bob")
	s.ErrorIs(err, ErrState)

	s.advanceTo(types.PhaseBrainstorming)
	comment, err := s.manager.AddBrainstormComment(s.ctx, itemID, "No-meeting Fridays", "Bob")
	s.Require().NoError(err)
	s.Equal(itemID, comment.ItemID)
	s.Equal("Bob", comment.Author)

	// item ids are stored as given, selected or not
	_, err = s.manager.AddBrainstormComment(s.ctx, "unselected", "Still stored", "Bob")
	s.NoError(err)
	s.Len(s.manager.PublicSession().BrainstormComments, 2)
}

// Functional Validation Tests - Action points

func (s *ManagerTestSuite) TestActionPoints() {
	s.create()

	_, err := s.manager.AddActionPoint(s.ctx, "Cancel standup", "Bob", "Alice", "")
	s.ErrorIs(err, ErrState)

	s.advanceTo(types.PhaseActionPoints)
	ap, err := s.manager.AddActionPoint(s.ctx, "Cancel standup", "Bob", "Alice", "")
	s.Require().NoError(err)
	s.Equal("Bob", ap.Assignee)

	updated, err := s.manager.AssignActionPoint(s.ctx, ap.ID, "Carol")
	s.Require().NoError(err)
	s.Equal("Carol", updated.Assignee)
	s.Equal("Cancel standup", updated.Text)

	_, err = s.manager.AssignActionPoint(s.ctx, "missing", "Carol")
	s.ErrorIs(err, ErrNotFound)

	stored, _ := s.manager.PublicSession().FindActionPoint(ap.ID)
	s.Equal("Carol", stored.Assignee)
}

func (s *ManagerTestSuite) TestActionPoints_ClosedSession() {
	s.create()
	s.advanceTo(types.PhaseActionPoints)
	ap, err := s.manager.AddActionPoint(s.ctx, "Cancel standup", "Bob", "Alice", "")
	s.Require().NoError(err)
	s.advanceTo(types.PhaseClosed)

	_, err = s.manager.AssignActionPoint(s.ctx, ap.ID, "Carol")
	s.ErrorIs(err, ErrState)
	s.EqualError(err, "retro is closed")
}

// Scenario Tests

func (s *ManagerTestSuite) TestScenario_Sprint12() {
	cred, err := s.manager.CreateSession(s.ctx, "Sprint 12", 300)
	s.Require().NoError(err)

	_, err = s.manager.AddParticipant(s.ctx, "Alice", s.manager.IsAdminToken(cred.AdminToken))
	s.Require().NoError(err)
	_, err = s.manager.AddParticipant(s.ctx, "Bob", s.manager.IsAdminToken(""))
	s.Require().NoError(err)

	phase, err := s.manager.ChangePhase(s.ctx, cred.AdminToken)
	s.Require().NoError(err)
	s.Equal(types.PhaseGoodItems, phase)

	_, err = s.manager.AddItem(s.ctx, "Ship faster", "Bob", types.CategoryGood)
	s.Require().NoError(err)

	_, err = s.manager.AddItem(s.ctx, "Ship faster", "Bob", types.CategoryImprove)
	s.ErrorIs(err, ErrState)

	snapshot := s.manager.PublicSession()
	s.True(snapshot.Participants[0].IsAdmin)
	s.False(snapshot.Participants[1].IsAdmin)
	s.Len(snapshot.Items, 1)
}

func (s *ManagerTestSuite) TestExportCSV() {
	_, err := s.manager.ExportCSV()
	s.ErrorIs(err, ErrNotFound)

	s.create()
	_, err = s.manager.AddParticipant(s.ctx, "Bob", false)
	s.Require().NoError(err)
	itemID := s.addItem(types.PhaseGoodItems, "Great sprint", types.CategoryGood)
	s.advanceTo(types.PhaseGoodVoting)
	_, err = s.manager.Vote(s.ctx, itemID, "Bob")
	s.Require().NoError(err)

	csv, err := s.manager.ExportCSV()
	s.Require().NoError(err)
	s.Contains(csv, "=== Participants: Alice, Bob ===")
	s.Contains(csv, `What Went Well,"Great sprint","Alice",1,"Bob"`)

	s.advanceTo(types.PhaseClosed)
	_, err = s.manager.ExportCSV()
	s.NoError(err, "closed sessions stay exportable until the next create")
}

// Functional Validation Tests - Read side

func (s *ManagerTestSuite) TestSnapshots() {
	s.Nil(s.manager.PublicSession())
	s.Nil(s.manager.ActiveSnapshot())

	s.create()

	snap, ok := s.manager.Snapshot(s.adminCred.RetroID)
	s.True(ok)
	s.Equal("Sprint 12", snap.SprintName)

	_, ok = s.manager.Snapshot("other")
	s.False(ok)

	s.Equal("admin-secret", s.manager.Session().AdminToken)
	s.NotNil(s.manager.ActiveSnapshot())

	snap.Participants[0].Name = "mutated"
	s.Equal("Alice", s.manager.PublicSession().Participants[0].Name, "snapshots are copies")

	stats := s.manager.GetStats()
	s.Equal(true, stats["active_session"])
	s.Equal(1, stats["participants"])
}

func (s *ManagerTestSuite) TestLoadActiveSession() {
	s.NoError(s.manager.LoadActiveSession(s.ctx), "empty slot is not an error")

	s.create()

	restarted := NewManager(s.store, WithClock(s.mockClock), WithIDGenerator(s.mockIDs))
	s.Require().NoError(restarted.LoadActiveSession(s.ctx))

	snapshot := restarted.PublicSession()
	s.Require().NotNil(snapshot)
	s.Equal(s.adminCred.RetroID, snapshot.ID)
	s.True(restarted.IsAdminToken("admin-secret"))
	s.True(restarted.HasParticipant("Alice"))
}
