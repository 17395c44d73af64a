package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// BanStore manages ban records in PostgreSQL. A ban is active while
// banned_until lies in the future; expired rows stay in place and are
// simply inert on lookup, which keeps re-banning a plain upsert.
type BanStore struct {
	db *sql.DB
}

// NewBanStore creates a ban store backed by the given database handle.
func NewBanStore(db *sql.DB) *BanStore {
	return &BanStore{db: db}
}

// BannedUntil looks up the ban expiry for an address. The second return is
// false when the address has never been banned; that is not an error.
// Infrastructure errors propagate so callers never mistake an outage for
// "not banned".
func (s *BanStore) BannedUntil(ctx context.Context, address string) (time.Time, bool, error) {
	const query = `SELECT banned_until FROM bans WHERE address = $1`

	var until time.Time
	err := s.db.QueryRowContext(ctx, query, address).Scan(&until)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: ban lookup: %w", err)
	}
	return until, true, nil
}

// Ban upserts a ban for the address expiring at until. The expiry only
// moves forward: an upsert with an earlier instant than the stored row
// leaves the existing ban in place.
func (s *BanStore) Ban(ctx context.Context, address string, until time.Time) error {
	const query = `
		INSERT INTO bans (address, banned_until)
		VALUES ($1, $2)
		ON CONFLICT (address)
		DO UPDATE SET banned_until = GREATEST(bans.banned_until, EXCLUDED.banned_until)`

	if _, err := s.db.ExecContext(ctx, query, address, until); err != nil {
		return fmt.Errorf("store: ban upsert: %w", err)
	}
	return nil
}
