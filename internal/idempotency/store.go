// Package idempotency remembers outcomes keyed by an external delivery id so
// replays can be answered without redoing work.
package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store interface {
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Remember(ctx context.Context, scope, key, value string) error {
	return s.rdb.Set(ctx, redisKey(scope, key), value, s.ttl).Err()
}

func (s *RedisStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, redisKey(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func redisKey(scope, key string) string {
	return "pawmarket:idemp:" + scope + ":" + key
}

// MemoryStore keeps entries in process memory. It backs single-instance
// deployments without Redis.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   string
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, entries: map[string]memoryEntry{}, now: time.Now}
}

func (s *MemoryStore) Remember(_ context.Context, scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[scope+":"+key] = memoryEntry{value: value, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Recall(_ context.Context, scope, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[scope+":"+key]
	if !ok {
		return "", false, nil
	}
	if s.ttl > 0 && s.now().After(e.expires) {
		delete(s.entries, scope+":"+key)
		return "", false, nil
	}
	return e.value, true, nil
}
