package revocation

import (
	"context"
	"sync"
	"time"
)

// Reasons recorded alongside a revocation.
const (
	ReasonReplay = "refresh_replay"
	ReasonLogout = "logout"
)

// Ledger records and answers family revocations.
type Ledger interface {
	// Revoke marks a family dead. Idempotent; the first reason wins.
	Revoke(ctx context.Context, now time.Time, familyID, reason string) error

	// IsRevoked reports whether the family has been revoked.
	IsRevoked(ctx context.Context, familyID string) (bool, error)
}

// MemoryLedger keeps revocations in process memory. Entries are never
// purged; the set grows with login volume and resets on restart.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemoryLedger constructs an empty in-process ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]string)}
}

func (l *MemoryLedger) Revoke(_ context.Context, _ time.Time, familyID, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[familyID]; !ok {
		l.entries[familyID] = reason
	}
	return nil
}

func (l *MemoryLedger) IsRevoked(_ context.Context, familyID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.entries[familyID]
	return ok, nil
}
