package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"retroboard/internal/export"
	dbconfig "retroboard/pkg/database"
	"retroboard/pkg/interfaces"
	"retroboard/pkg/types"
)

// Manager implements the SessionStore interface on SQLite. Reads go straight
// to the connection pool; every write is funnelled through one goroutine.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	stopped      chan struct{} // Closed once writeLoop has returned
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies the embedded migrations and starts
// the writer goroutine
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	migrations := dbconfig.NewMigrationManager(db, dbconfig.EmbeddedMigrations())
	if err := migrations.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := migrations.ValidateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database schema is incomplete: %w", err)
	}
	log.Printf("Database ready: path=%s", config.DatabasePath)

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		stopped:      make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine. A failed
// write is retried once after the configured delay. Writes still queued at
// shutdown fail with ErrStoreClosed.
func (m *Manager) writeLoop() {
	defer m.wg.Done()
	defer close(m.stopped)

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in %v: %v", m.config.RetryDelay, err)
				time.Sleep(m.config.RetryDelay)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			for {
				select {
				case op := <-m.writeChannel:
					op.result <- interfaces.ErrStoreClosed
				default:
					return
				}
			}
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-time.After(m.config.WriteTimeout):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return interfaces.ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-m.stopped:
		// The loop may have answered just before exiting
		select {
		case err := <-result:
			return err
		default:
			return interfaces.ErrStoreClosed
		}
	}
}

// SaveActive overwrites the single active slot row
func (m *Manager) SaveActive(ctx context.Context, session *types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT INTO active_session (slot, session_id, data, updated_at)
			VALUES (1, ?, ?, ?)
			ON CONFLICT(slot) DO UPDATE SET
				session_id = excluded.session_id,
				data = excluded.data,
				updated_at = excluded.updated_at
		`
		if _, err := db.ExecContext(ctx, query, session.ID, string(data), time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to save active session: %w", err)
		}
		return nil
	})
}

// LoadActive reads the active slot row
func (m *Manager) LoadActive(ctx context.Context) (*types.Session, error) {
	var data string
	err := m.db.QueryRowContext(ctx, "SELECT data FROM active_session WHERE slot = 1").Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query active session: %w", err)
	}
	return decodeSession(data)
}

// ClearActive deletes the active slot row
func (m *Manager) ClearActive(ctx context.Context) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, "DELETE FROM active_session"); err != nil {
			return fmt.Errorf("failed to clear active session: %w", err)
		}
		return nil
	})
}

// Archive stores the JSON snapshot and CSV report of a closed session.
// Re-archiving the same session replaces its record.
func (m *Manager) Archive(ctx context.Context, session *types.Session) error {
	return m.archive(ctx, session, false)
}

// CloseActive archives the session and deletes the active slot row in one
// transaction
func (m *Manager) CloseActive(ctx context.Context, session *types.Session) error {
	return m.archive(ctx, session, true)
}

func (m *Manager) archive(ctx context.Context, session *types.Session, clearActive bool) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	var closedAt sql.NullString
	if session.ClosedAt != nil {
		closedAt = sql.NullString{String: session.ClosedAt.UTC().Format(export.TimestampLayout), Valid: true}
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		query := `
			INSERT OR REPLACE INTO archived_sessions (id, sprint_name, created_at, closed_at, file, data, csv)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		_, err = tx.ExecContext(ctx, query,
			session.ID,
			session.SprintName,
			session.CreatedAt.UTC().Format(export.TimestampLayout),
			closedAt,
			export.ArchiveBaseName(&session.PublicSession)+".json",
			string(data),
			export.RenderCSV(&session.PublicSession),
		)
		if err != nil {
			return fmt.Errorf("failed to insert archived session: %w", err)
		}

		if clearActive {
			if _, err := tx.ExecContext(ctx, "DELETE FROM active_session"); err != nil {
				return fmt.Errorf("failed to clear active session: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit archive: %w", err)
		}
		return nil
	})
}

// ListArchived returns one summary per archived session, oldest first
func (m *Manager) ListArchived(ctx context.Context) ([]types.ArchiveSummary, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, sprint_name, created_at, file
		FROM archived_sessions
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query archived sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []types.ArchiveSummary{}
	for rows.Next() {
		var s types.ArchiveSummary
		if err := rows.Scan(&s.ID, &s.SprintName, &s.Date, &s.File); err != nil {
			return nil, fmt.Errorf("failed to scan archived session row: %w", err)
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archived session rows: %w", err)
	}
	return summaries, nil
}

// FindByID checks the active slot first, then the archive
func (m *Manager) FindByID(ctx context.Context, sessionID string) (*types.Session, error) {
	var data string
	err := m.db.QueryRowContext(ctx,
		"SELECT data FROM active_session WHERE slot = 1 AND session_id = ?", sessionID,
	).Scan(&data)
	if err == nil {
		return decodeSession(data)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query active session: %w", err)
	}

	err = m.db.QueryRowContext(ctx,
		"SELECT data FROM archived_sessions WHERE id = ?", sessionID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query archived session: %w", err)
	}
	return decodeSession(data)
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM archived_sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database connection
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the writer goroutine and the connection pool
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func decodeSession(data string) (*types.Session, error) {
	var session types.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	session.Normalize()
	return &session, nil
}
