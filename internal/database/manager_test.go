package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"retroboard/internal/storage/storetest"
	"retroboard/pkg/database"
	"retroboard/pkg/interfaces"
	"retroboard/pkg/types"
)

func testConfig(t *testing.T) *database.Config {
	cfg := database.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.WriteTimeout = 5 * time.Second
	return cfg
}

func setupTestDB(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(testConfig(t))
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })
	return manager
}

func TestManagerContractSuite(t *testing.T) {
	suite.Run(t, &storetest.ContractSuite{
		NewStore: func() interfaces.SessionStore {
			manager, err := NewManager(testConfig(t))
			if err != nil {
				t.Fatalf("Failed to create manager: %v", err)
			}
			return manager
		},
	})
}

// Architectural Validation Tests

func TestManager_InterfaceCompliance(t *testing.T) {
	var _ interfaces.SessionStore = &Manager{}
}

func TestManager_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabasePath = ""

	if _, err := NewManager(cfg); err == nil {
		t.Error("Expected invalid config to be rejected")
	}
}

func TestManager_SchemaAppliedOnOpen(t *testing.T) {
	manager := setupTestDB(t)

	v := database.NewSchemaValidator(manager.GetDB())
	if err := v.ValidateTablesExist(); err != nil {
		t.Errorf("Tables missing after NewManager: %v", err)
	}
	if err := v.ValidateTableStructure(); err != nil {
		t.Errorf("Unexpected table structure: %v", err)
	}
}

// Functional Validation Tests - Active slot

func TestManager_ActiveSlotHoldsOneRow(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"aaaa1111", "bbbb2222"} {
		s := &types.Session{PublicSession: types.PublicSession{ID: id, SprintName: "Sprint"}}
		if err := manager.SaveActive(ctx, s); err != nil {
			t.Fatalf("SaveActive failed: %v", err)
		}
	}

	var count int
	if err := manager.GetDB().QueryRow("SELECT COUNT(*) FROM active_session").Scan(&count); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected exactly one active row, got %d", count)
	}

	loaded, err := manager.LoadActive(ctx)
	if err != nil {
		t.Fatalf("LoadActive failed: %v", err)
	}
	if loaded.ID != "bbbb2222" {
		t.Errorf("Expected last write to win, got %s", loaded.ID)
	}

	if _, err := manager.FindByID(ctx, "aaaa1111"); err != interfaces.ErrSessionNotFound {
		t.Errorf("Overwritten session should be gone, got %v", err)
	}
}

func TestManager_ArchiveStoresCSV(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	closedAt := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	session := &types.Session{
		PublicSession: types.PublicSession{
			ID:         "abcd1234",
			SprintName: "Sprint 12",
			Phase:      types.PhaseClosed,
			Items: []types.RetroItem{
				{ID: "i1", Text: "Great sprint", Author: "Alice", Votes: []string{"Bob"}, Category: types.CategoryGood},
			},
			CreatedAt: closedAt.Add(-time.Hour),
			ClosedAt:  &closedAt,
		},
	}
	if err := manager.Archive(ctx, session); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	var csv, closed string
	err := manager.GetDB().QueryRow("SELECT csv, closed_at FROM archived_sessions WHERE id = ?", "abcd1234").Scan(&csv, &closed)
	if err != nil {
		t.Fatalf("Failed to read archive row: %v", err)
	}
	if closed != "2026-10-19T10:00:00.000Z" {
		t.Errorf("Unexpected closed_at %q", closed)
	}
	want := `What Went Well,"Great sprint","Alice",1,"Bob"`
	if !strings.Contains(csv, want) {
		t.Errorf("Archived CSV missing %q:\n%s", want, csv)
	}
}

// Technical Validation Tests - Single writer

func TestManager_ConcurrentWrites(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := &types.Session{PublicSession: types.PublicSession{ID: "abcd1234", SprintName: "Sprint", TimerDuration: i + 1}}
			errs <- manager.SaveActive(ctx, s)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent write failed: %v", err)
		}
	}

	if _, err := manager.LoadActive(ctx); err != nil {
		t.Errorf("LoadActive after concurrent writes failed: %v", err)
	}
}

func TestManager_CleanShutdown(t *testing.T) {
	manager, err := NewManager(testConfig(t))
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	if err := manager.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Errorf("Second Close should be a no-op: %v", err)
	}

	err = manager.SaveActive(context.Background(), &types.Session{})
	if err != interfaces.ErrStoreClosed {
		t.Errorf("Expected ErrStoreClosed after Close, got %v", err)
	}
}

func TestManager_CloseActiveRollsBackOnFailure(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	closedAt := time.Date(2026, 10, 19, 11, 0, 0, 0, time.UTC)
	session := &types.Session{PublicSession: types.PublicSession{ID: "abcd1234", SprintName: "Sprint 12"}}
	if err := manager.SaveActive(ctx, session); err != nil {
		t.Fatalf("SaveActive failed: %v", err)
	}

	_, err := manager.GetDB().Exec(`
		CREATE TRIGGER keep_active BEFORE DELETE ON active_session
		BEGIN SELECT RAISE(ABORT, 'disk full'); END
	`)
	if err != nil {
		t.Fatalf("Failed to create trigger: %v", err)
	}

	closed := session.Clone()
	closed.Phase = types.PhaseClosed
	closed.ClosedAt = &closedAt
	if err := manager.CloseActive(ctx, closed); err == nil {
		t.Fatal("Expected CloseActive to fail")
	}

	summaries, err := manager.ListArchived(ctx)
	if err != nil {
		t.Fatalf("ListArchived failed: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("Failed close should leave no archive, got %v", summaries)
	}
	if _, err := manager.LoadActive(ctx); err != nil {
		t.Errorf("Failed close should keep the active slot: %v", err)
	}
}

func TestManager_ShutdownReleasesQueuedWrites(t *testing.T) {
	manager, err := NewManager(testConfig(t))
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	ctx := context.Background()

	// Hold the writer so the next write stays queued
	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = manager.executeWrite(ctx, func(db *sql.DB) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	queued := make(chan error, 1)
	go func() {
		queued <- manager.SaveActive(ctx, &types.Session{PublicSession: types.PublicSession{ID: "abcd1234"}})
	}()
	deadline := time.Now().Add(2 * time.Second)
	for len(manager.writeChannel) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(manager.writeChannel) == 0 {
		t.Fatal("Write was never queued")
	}

	closed := make(chan error, 1)
	go func() { closed <- manager.Close() }()
	shuttingDown := func() bool {
		select {
		case <-manager.shutdown:
			return true
		default:
			return false
		}
	}
	for !shuttingDown() {
		time.Sleep(time.Millisecond)
	}
	close(release)

	select {
	case err := <-queued:
		if err != nil && err != interfaces.ErrStoreClosed {
			t.Errorf("Expected nil or ErrStoreClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Queued write never returned after shutdown")
	}

	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not finish")
	}
}

func TestManager_HealthCheck(t *testing.T) {
	manager := setupTestDB(t)
	if err := manager.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestManager_RestartKeepsActiveSession(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	first, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	s := &types.Session{PublicSession: types.PublicSession{ID: "abcd1234", SprintName: "Sprint 12"}, AdminToken: "secret"}
	if err := first.SaveActive(ctx, s); err != nil {
		t.Fatalf("SaveActive failed: %v", err)
	}
	_ = first.Close()

	second, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("Failed to reopen manager: %v", err)
	}
	defer second.Close()

	loaded, err := second.LoadActive(ctx)
	if err != nil {
		t.Fatalf("LoadActive after restart failed: %v", err)
	}
	if loaded.AdminToken != "secret" {
		t.Error("Admin token should survive a restart")
	}
}
