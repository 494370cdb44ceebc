package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"retroboard/internal/export"
	"retroboard/pkg/interfaces"
	"retroboard/pkg/types"
)

const (
	activeFileName = "active-retro.json"
	archiveDirName = "retros"
)

// FileStore keeps the active session in <dataDir>/active-retro.json and
// every closed session as a JSON + CSV pair under <dataDir>/retros.
type FileStore struct {
	dataDir    string
	retrosDir  string
	activePath string
	mu         sync.Mutex
}

// NewFileStore creates the data directories if needed
func NewFileStore(dataDir string) (*FileStore, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	s := &FileStore{
		dataDir:    abs,
		retrosDir:  filepath.Join(abs, archiveDirName),
		activePath: filepath.Join(abs, activeFileName),
	}
	if err := os.MkdirAll(s.retrosDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	log.Printf("File store ready: dir=%s", abs)
	return s, nil
}

// SaveActive overwrites the active slot
func (s *FileStore) SaveActive(ctx context.Context, session *types.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.activePath, data)
}

// LoadActive reads the active slot
func (s *FileStore) LoadActive(ctx context.Context) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := readSessionFile(s.activePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, interfaces.ErrSessionNotFound
	}
	return session, err
}

// ClearActive deletes the active slot file
func (s *FileStore) ClearActive(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.activePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear active session: %w", err)
	}
	return nil
}

// Archive writes <base>.json and <base>.csv, replacing any earlier archive
// of the same session
func (s *FileStore) Archive(ctx context.Context, session *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, _, err := s.archiveLocked(session)
	if err != nil {
		return err
	}
	s.pruneArchivesLocked(session.ID, base)

	log.Printf("Archived session: id=%s file=%s", session.ID, base)
	return nil
}

// CloseActive writes the archive pair, then deletes the active slot file.
// If the delete fails the pair is removed again.
func (s *FileStore) CloseActive(ctx context.Context, session *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, written, err := s.archiveLocked(session)
	if err != nil {
		return err
	}
	if err := os.Remove(s.activePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		for _, path := range written {
			os.Remove(path)
		}
		return fmt.Errorf("failed to clear active session: %w", err)
	}
	s.pruneArchivesLocked(session.ID, base)

	log.Printf("Archived session: id=%s file=%s", session.ID, base)
	return nil
}

// archiveLocked writes the JSON + CSV pair and returns its base name and the
// paths written. A half-written pair is removed before returning an error.
func (s *FileStore) archiveLocked(session *types.Session) (string, []string, error) {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	base := export.ArchiveBaseName(&session.PublicSession)
	jsonPath := filepath.Join(s.retrosDir, base+".json")
	csvPath := filepath.Join(s.retrosDir, base+".csv")

	if err := writeFileAtomic(jsonPath, data); err != nil {
		return "", nil, err
	}
	if err := writeFileAtomic(csvPath, []byte(export.RenderCSV(&session.PublicSession))); err != nil {
		os.Remove(jsonPath)
		return "", nil, err
	}
	return base, []string{jsonPath, csvPath}, nil
}

// pruneArchivesLocked removes earlier archives of the session stored under
// another base name
func (s *FileStore) pruneArchivesLocked(sessionID, keep string) {
	stale, err := filepath.Glob(filepath.Join(s.retrosDir, "retro-"+sessionID+"-*"))
	if err != nil {
		log.Printf("Failed to scan archive: id=%s error=%v", sessionID, err)
		return
	}
	for _, path := range stale {
		name := filepath.Base(path)
		if strings.TrimSuffix(strings.TrimSuffix(name, ".json"), ".csv") != keep {
			os.Remove(path)
		}
	}
}

// ListArchived parses every archived JSON file
func (s *FileStore) ListArchived(ctx context.Context) ([]types.ArchiveSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summaries []types.ArchiveSummary
	err := s.eachArchive(func(file string, session *types.Session) bool {
		summaries = append(summaries, summaryOf(session, file))
		return true
	})
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []types.ArchiveSummary{}
	}
	return summaries, nil
}

// FindByID checks the active slot first, then the archive
func (s *FileStore) FindByID(ctx context.Context, sessionID string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := readSessionFile(s.activePath)
	if err == nil && active.ID == sessionID {
		return active, nil
	}

	var found *types.Session
	err = s.eachArchive(func(file string, session *types.Session) bool {
		if session.ID == sessionID {
			found = session
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, interfaces.ErrSessionNotFound
	}
	return found, nil
}

// HealthCheck verifies the data directory is still there
func (s *FileStore) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.retrosDir)
	if err != nil {
		return fmt.Errorf("data directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory unavailable: %s is not a directory", s.retrosDir)
	}
	return nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}

// eachArchive calls fn for every readable archive in file name order until
// fn returns false. Unreadable files are logged and skipped.
func (s *FileStore) eachArchive(fn func(file string, session *types.Session) bool) error {
	entries, err := os.ReadDir(s.retrosDir)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		session, err := readSessionFile(filepath.Join(s.retrosDir, entry.Name()))
		if err != nil {
			log.Printf("Skipping unreadable archive: file=%s error=%v", entry.Name(), err)
			continue
		}
		if !fn(entry.Name(), session) {
			return nil
		}
	}
	return nil
}

func readSessionFile(path string) (*types.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	session.Normalize()
	return &session, nil
}

// writeFileAtomic writes data to a temporary file in the target directory
// and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
