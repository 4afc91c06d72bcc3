package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting returns the stored value and whether the key exists.
func (db *DB) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return getSetting(ctx, db.DB, key)
}

// GetSetting reads through the open transaction; an in-memory database has a
// single connection, so reads outside the transaction would block.
func (s *txStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return getSetting(ctx, s.tx, key)
}

func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

func getSetting(ctx context.Context, q querier, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}
