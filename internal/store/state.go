package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetState retrieves a state value. The boolean reports whether it was set.
func (s *SQLiteStore) GetState(ctx context.Context, collection, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM sync_state WHERE collection = ? AND key = ?
	`, collection, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %s/%s: %w", collection, key, err)
	}
	return value, true, nil
}

// SetState sets a state value, replacing any previous value.
func (s *SQLiteStore) SetState(ctx context.Context, collection, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_state (collection, key, value, updated_at) VALUES (?, ?, ?, ?)
	`, collection, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set state %s/%s: %w", collection, key, err)
	}
	return nil
}

// DeleteState removes a state value. Removing a missing key is not an error.
func (s *SQLiteStore) DeleteState(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_state WHERE collection = ? AND key = ?
	`, collection, key)
	if err != nil {
		return fmt.Errorf("delete state %s/%s: %w", collection, key, err)
	}
	return nil
}

// InsertStateIfAbsent writes value only when the key is unset. The primary
// key conflict makes the check-and-set a single atomic statement.
func (s *SQLiteStore) InsertStateIfAbsent(ctx context.Context, collection, key, value string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (collection, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, key) DO NOTHING
	`, collection, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("insert state %s/%s: %w", collection, key, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}
