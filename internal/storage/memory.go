package storage

import (
	"context"
	"sort"
	"sync"

	"retroboard/internal/export"
	"retroboard/pkg/interfaces"
	"retroboard/pkg/types"
)

type memoryArchive struct {
	session *types.Session
	file    string
}

// MemoryStore keeps the active slot and the archive in process memory.
// Nothing survives a restart.
type MemoryStore struct {
	active   *types.Session
	archives map[string]memoryArchive
	closed   bool
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{archives: make(map[string]memoryArchive)}
}

func (m *MemoryStore) SaveActive(ctx context.Context, session *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return interfaces.ErrStoreClosed
	}
	m.active = session.Clone()
	return nil
}

func (m *MemoryStore) LoadActive(ctx context.Context) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return nil, interfaces.ErrSessionNotFound
	}
	return m.active.Clone(), nil
}

func (m *MemoryStore) ClearActive(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return interfaces.ErrStoreClosed
	}
	m.active = nil
	return nil
}

func (m *MemoryStore) Archive(ctx context.Context, session *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return interfaces.ErrStoreClosed
	}
	m.archiveLocked(session)
	return nil
}

func (m *MemoryStore) CloseActive(ctx context.Context, session *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return interfaces.ErrStoreClosed
	}
	m.archiveLocked(session)
	m.active = nil
	return nil
}

func (m *MemoryStore) archiveLocked(session *types.Session) {
	m.archives[session.ID] = memoryArchive{
		session: session.Clone(),
		file:    export.ArchiveBaseName(&session.PublicSession) + ".json",
	}
}

func (m *MemoryStore) ListArchived(ctx context.Context) ([]types.ArchiveSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]types.ArchiveSummary, 0, len(m.archives))
	for _, a := range m.archives {
		summaries = append(summaries, summaryOf(a.session, a.file))
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].File < summaries[j].File })
	return summaries, nil
}

func (m *MemoryStore) FindByID(ctx context.Context, sessionID string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active != nil && m.active.ID == sessionID {
		return m.active.Clone(), nil
	}
	if a, ok := m.archives[sessionID]; ok {
		return a.session.Clone(), nil
	}
	return nil, interfaces.ErrSessionNotFound
}

func (m *MemoryStore) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return interfaces.ErrStoreClosed
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
