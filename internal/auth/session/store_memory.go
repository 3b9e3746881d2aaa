package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback backend.
//
// It holds all records in one map guarded by a mutex. Expiry is manual:
// Get deletes expired records lazily, CleanupExpired scans the whole map.
// Suitable for single-process deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Create persists a new record and returns its session id.
func (s *MemoryStore) Create(ctx context.Context, now time.Time, familyID string, expiresAt time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if familyID == "" || !expiresAt.After(now) {
		return "", ErrInvalidRecord
	}

	id, err := NewID(now)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.records[id] = Record{SessionID: id, FamilyID: familyID, ExpiresAt: expiresAt}
	s.mu.Unlock()

	return id, nil
}

// Get returns the family id for a live record. Expired records are deleted
// on the way, so a later Get is indistinguishable from a never-created id.
func (s *MemoryStore) Get(ctx context.Context, now time.Time, sessionID string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionID]
	if !ok {
		return "", false, nil
	}
	if !rec.Live(now) {
		delete(s.records, sessionID)
		return "", false, nil
	}
	return rec.FamilyID, true, nil
}

// Delete removes a record. Idempotent.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.records[sessionID]
	delete(s.records, sessionID)
	return ok, nil
}

// CleanupExpired removes all expired records. Bounded by process memory.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, rec := range s.records {
		if !rec.Live(now) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of physically present records, expired included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
