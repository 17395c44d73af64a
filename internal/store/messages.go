package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageStore manages the per-address message history in PostgreSQL.
type MessageStore struct {
	db *sql.DB
}

// NewMessageStore creates a message store backed by the given database handle.
func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Insert records an accepted message and returns its id. The timestamp is
// assigned by the database so ordering follows the store's clock, not the
// caller's.
func (s *MessageStore) Insert(ctx context.Context, address, fingerprint string) (string, error) {
	id := uuid.NewString()

	const query = `
		INSERT INTO messages (id, address, fingerprint)
		VALUES ($1, $2, $3)`

	if _, err := s.db.ExecContext(ctx, query, id, address, fingerprint); err != nil {
		return "", fmt.Errorf("store: insert message: %w", err)
	}
	return id, nil
}

// CountRecent returns the number of messages from address with the given
// fingerprint whose timestamp falls within the last window.
func (s *MessageStore) CountRecent(ctx context.Context, address, fingerprint string, window time.Duration) (int, error) {
	// Durations are passed as whole seconds: Postgres reads the "m" in
	// Go's duration format ("1m0s") as months.
	const query = `
		SELECT COUNT(*)
		FROM messages
		WHERE address = $1
		  AND fingerprint = $2
		  AND created_at >= NOW() - ($3 * INTERVAL '1 second')`

	var count int
	err := s.db.QueryRowContext(ctx, query, address, fingerprint, int64(window.Seconds())).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count recent: %w", err)
	}
	return count, nil
}

// DeleteNewest removes the n most-recent messages for an address. Used by
// the ban branch to purge the spam burst itself without scanning the full
// history.
func (s *MessageStore) DeleteNewest(ctx context.Context, address string, n int) error {
	const query = `
		DELETE FROM messages
		WHERE id IN (
			SELECT id FROM messages
			WHERE address = $1
			ORDER BY created_at DESC
			LIMIT $2
		)`

	if _, err := s.db.ExecContext(ctx, query, address, n); err != nil {
		return fmt.Errorf("store: delete newest: %w", err)
	}
	return nil
}

// EnforceCap trims an address's history to at most cap rows, deleting the
// oldest first. Returns the number of rows deleted. Calling it again once
// at or under the cap deletes nothing.
func (s *MessageStore) EnforceCap(ctx context.Context, address string, cap int) (int64, error) {
	const query = `
		DELETE FROM messages
		WHERE id IN (
			SELECT id FROM messages
			WHERE address = $1
			ORDER BY created_at ASC
			LIMIT GREATEST(0, (SELECT COUNT(*) FROM messages WHERE address = $1) - $2)
		)`

	res, err := s.db.ExecContext(ctx, query, address, cap)
	if err != nil {
		return 0, fmt.Errorf("store: enforce cap: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: enforce cap rows: %w", err)
	}
	return deleted, nil
}

// SweepExpired deletes every message, across all addresses, older than
// maxAge. Returns the number of rows deleted.
func (s *MessageStore) SweepExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	const query = `
		DELETE FROM messages
		WHERE created_at < NOW() - ($1 * INTERVAL '1 second')`

	res, err := s.db.ExecContext(ctx, query, int64(maxAge.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("store: sweep expired: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: sweep rows: %w", err)
	}
	return deleted, nil
}

// CountByAddress returns the total number of stored messages for an address.
func (s *MessageStore) CountByAddress(ctx context.Context, address string) (int, error) {
	const query = `SELECT COUNT(*) FROM messages WHERE address = $1`

	var count int
	if err := s.db.QueryRowContext(ctx, query, address).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count by address: %w", err)
	}
	return count, nil
}
