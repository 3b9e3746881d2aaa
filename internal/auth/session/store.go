package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached. It is an infrastructure failure, distinct from an absent or
	// expired record, so callers can answer with a retry-appropriate status
	// instead of an auth rejection.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrInvalidRecord is returned when a record would be created with an
	// expiry that is not in the future.
	ErrInvalidRecord = errors.New("session expiry must be in the future")
)

// Record is a single session entry. Records are immutable once created; all
// mutation goes through Create/Delete.
type Record struct {
	SessionID string    `json:"-"`
	FamilyID  string    `json:"family_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Live reports whether the record is logically present at time now.
// A record past its expiry is absent regardless of physical purging.
func (r Record) Live(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

// Store abstracts persistence for session records.
//
// Both backends must produce identical observable behavior for Create, Get,
// and Delete; they may differ in CleanupExpired cost and necessity. Time is
// passed explicitly so expiry behavior is testable without sleeping.
type Store interface {
	// Create persists a new record for familyID and returns its freshly
	// generated session id.
	Create(ctx context.Context, now time.Time, familyID string, expiresAt time.Time) (string, error)

	// Get returns the family id iff a record exists and is not expired.
	// An expired record found on the way is deleted as a side effect.
	// A transport failure yields ErrStoreUnavailable, never a backend error.
	Get(ctx context.Context, now time.Time, sessionID string) (familyID string, ok bool, err error)

	// Delete removes a record. Idempotent; reports whether one existed.
	Delete(ctx context.Context, sessionID string) (bool, error)

	// CleanupExpired removes all expired records and returns how many were
	// purged. A no-op for backends with native TTLs.
	CleanupExpired(ctx context.Context, now time.Time) (int, error)
}
