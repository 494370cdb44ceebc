package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"retroboard/internal/export"
	"retroboard/pkg/interfaces"
	"retroboard/pkg/types"
)

const (
	// Key layout for Redis
	activeKey        = "retro:active"
	archiveKeyPrefix = "retro:archive:"
	archivesSetKey   = "retro:archives"
)

// Archive hash fields
const (
	fieldJSON       = "json"
	fieldCSV        = "csv"
	fieldFile       = "file"
	fieldSprintName = "sprintName"
	fieldCreatedAt  = "createdAt"
)

// RedisConfig holds configuration for the Redis session store
type RedisConfig struct {
	// Redis client
	RedisClient *redis.Client
}

// RedisStore keeps the active session under retro:active and each archived
// session in a hash at retro:archive:<id>, indexed by the retro:archives set.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.RedisClient == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	if err := cfg.RedisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: cfg.RedisClient}, nil
}

func archiveKey(sessionID string) string {
	return archiveKeyPrefix + sessionID
}

// SaveActive overwrites the active slot
func (r *RedisStore) SaveActive(ctx context.Context, session *types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, activeKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save active session: %w", err)
	}
	return nil
}

// LoadActive reads the active slot
func (r *RedisStore) LoadActive(ctx context.Context) (*types.Session, error) {
	data, err := r.client.Get(ctx, activeKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}
	return decodeSession(data)
}

// ClearActive deletes the active slot
func (r *RedisStore) ClearActive(ctx context.Context) error {
	if err := r.client.Del(ctx, activeKey).Err(); err != nil {
		return fmt.Errorf("failed to clear active session: %w", err)
	}
	return nil
}

// Archive stores the JSON snapshot and CSV report in one transaction
func (r *RedisStore) Archive(ctx context.Context, session *types.Session) error {
	pipe := r.client.TxPipeline()
	if err := queueArchive(ctx, pipe, session); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to archive session: %w", err)
	}
	return nil
}

// CloseActive archives the session and deletes the active slot in one
// MULTI/EXEC transaction
func (r *RedisStore) CloseActive(ctx context.Context, session *types.Session) error {
	pipe := r.client.TxPipeline()
	if err := queueArchive(ctx, pipe, session); err != nil {
		return err
	}
	pipe.Del(ctx, activeKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to close active session: %w", err)
	}
	return nil
}

func queueArchive(ctx context.Context, pipe redis.Pipeliner, session *types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	pipe.HSet(ctx, archiveKey(session.ID), map[string]interface{}{
		fieldJSON:       data,
		fieldCSV:        export.RenderCSV(&session.PublicSession),
		fieldFile:       export.ArchiveBaseName(&session.PublicSession) + ".json",
		fieldSprintName: session.SprintName,
		fieldCreatedAt:  session.CreatedAt.UTC().Format(export.TimestampLayout),
	})
	pipe.SAdd(ctx, archivesSetKey, session.ID)
	return nil
}

// ListArchived reads the summary fields of every archived session
func (r *RedisStore) ListArchived(ctx context.Context) ([]types.ArchiveSummary, error) {
	ids, err := r.client.SMembers(ctx, archivesSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, archiveKey(id), fieldSprintName, fieldCreatedAt, fieldFile)
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to list archives: %w", err)
		}
	}

	summaries := make([]types.ArchiveSummary, 0, len(ids))
	for i, id := range ids {
		vals := cmds[i].Val()
		if len(vals) != 3 || vals[0] == nil {
			continue
		}
		summaries = append(summaries, types.ArchiveSummary{
			ID:         id,
			SprintName: stringOf(vals[0]),
			Date:       stringOf(vals[1]),
			File:       stringOf(vals[2]),
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].File < summaries[j].File })
	return summaries, nil
}

// FindByID checks the active slot first, then the archive hash
func (r *RedisStore) FindByID(ctx context.Context, sessionID string) (*types.Session, error) {
	active, err := r.LoadActive(ctx)
	if err == nil && active.ID == sessionID {
		return active, nil
	}
	if err != nil && !errors.Is(err, interfaces.ErrSessionNotFound) {
		return nil, err
	}

	data, err := r.client.HGet(ctx, archiveKey(sessionID), fieldJSON).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get archived session: %w", err)
	}
	return decodeSession(data)
}

// HealthCheck pings the server
func (r *RedisStore) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func decodeSession(data []byte) (*types.Session, error) {
	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	session.Normalize()
	return &session, nil
}

func stringOf(v interface{}) string {
	s, _ := v.(string)
	return s
}
