package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces session records in Redis.
const keyPrefix = "session:"

// RedisStore persists session records in Redis with native key TTLs.
//
// Expiry is delegated entirely to Redis: the key's TTL is set to the record's
// remaining lifetime at creation, so CleanupExpired has nothing to do. Any
// transport failure surfaces as ErrStoreUnavailable so callers can tell an
// outage apart from a missing record.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStore wraps an already-connected Redis client.
func NewRedisStore(client *redis.Client, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) Create(ctx context.Context, now time.Time, familyID string, expiresAt time.Time) (string, error) {
	if familyID == "" || !expiresAt.After(now) {
		return "", ErrInvalidRecord
	}

	id, err := NewID(now)
	if err != nil {
		return "", err
	}

	rec := Record{FamilyID: familyID, ExpiresAt: expiresAt}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}

	if err := s.client.Set(ctx, keyPrefix+id, payload, expiresAt.Sub(now)).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}

func (s *RedisStore) Get(ctx context.Context, now time.Time, sessionID string) (string, bool, error) {
	raw, err := s.client.Get(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		// A corrupt value is treated as absent. Best-effort removal so it
		// does not keep tripping every lookup.
		s.log.Warn("session: dropping malformed record", "session_id", sessionID, "error", err)
		_ = s.client.Del(ctx, keyPrefix+sessionID).Err()
		return "", false, nil
	}
	if !rec.Live(now) {
		// TTL should have purged this already; clock skew between the app
		// and Redis can leave a brief window.
		return "", false, nil
	}
	return rec.FamilyID, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Del(ctx, keyPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// CleanupExpired is a no-op: Redis purges keys by TTL.
func (s *RedisStore) CleanupExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
