package persist

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ruvnet/tokenfield/internal/config"
	"github.com/ruvnet/tokenfield/internal/errors"
)

const redisKeyPrefix = "tokenfield:session:"

// RedisStore persists snapshots in Redis, for deployments sharing sessions
// across hosts.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg config.PersistConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func redisKey(session string) string {
	return redisKeyPrefix + session
}

// SaveSnapshot stores the blob and optional log under a session hash.
func (s *RedisStore) SaveSnapshot(ctx context.Context, session string, snap *Snapshot) error {
	fields := map[string]interface{}{"blob": snap.Blob}
	if snap.Log != nil {
		fields["log"] = snap.Log
	}
	return s.client.HSet(ctx, redisKey(session), fields).Err()
}

// LoadSnapshot reads a session hash.
func (s *RedisStore) LoadSnapshot(ctx context.Context, session string) (*Snapshot, error) {
	values, err := s.client.HGetAll(ctx, redisKey(session)).Result()
	if err != nil {
		return nil, err
	}
	blob, ok := values["blob"]
	if !ok {
		return nil, errors.Newf(errors.CorruptDocument, "session %s not found", session)
	}
	snap := &Snapshot{Blob: []byte(blob)}
	if log, ok := values["log"]; ok {
		snap.Log = []byte(log)
	}
	return snap, nil
}

// ListSessions scans the session keyspace.
func (s *RedisStore) ListSessions(ctx context.Context) ([]string, error) {
	var out []string
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val()[len(redisKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Delete removes a session.
func (s *RedisStore) Delete(ctx context.Context, session string) error {
	return s.client.Del(ctx, redisKey(session)).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Open resolves the configured backend.
func Open(cfg config.PersistConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg)
	default:
		return NewFileStore(cfg.Dir)
	}
}
