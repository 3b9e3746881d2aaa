package revocation

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists revocations so they survive restarts and are
// visible to every replica. Replay detection is only as good as its memory;
// a revoked family must stay revoked after a deploy.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger wraps an existing pool.
// Note: it does NOT run migrations; schema management is handled externally.
// The expected table:
//
//	CREATE TABLE auth.revoked_families (
//	    family_id  text PRIMARY KEY,
//	    reason     text NOT NULL,
//	    revoked_at timestamptz NOT NULL
//	);
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (l *PostgresLedger) Revoke(ctx context.Context, now time.Time, familyID, reason string) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO auth.revoked_families (family_id, reason, revoked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (family_id) DO NOTHING
	`, familyID, reason, now)
	return err
}

func (l *PostgresLedger) IsRevoked(ctx context.Context, familyID string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM auth.revoked_families WHERE family_id = $1)
	`, familyID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
