package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetTransient stores a value under name that expires after ttl.
// A zero ttl never expires.
func (s *Store) SetTransient(ctx context.Context, name, value string, ttl time.Duration) error {
	var expires any
	if ttl != 0 {
		expires = time.Now().Add(ttl).UTC().Format(time.RFC3339Nano)
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO transients (name, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		name, value, expires)
	if err != nil {
		return fmt.Errorf("failed to set transient %q: %w", name, err)
	}
	return nil
}

// Transient returns the value stored under name.
// Expired values are deleted and reported as missing.
func (s *Store) Transient(ctx context.Context, name string) (string, bool, error) {
	var (
		value   string
		expires sql.NullString
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT value, expires_at FROM transients WHERE name = ?`, name).Scan(&value, &expires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("failed to load transient %q: %w", name, err)
	}
	if expires.Valid {
		t, err := time.Parse(time.RFC3339Nano, expires.String)
		if err != nil || !time.Now().Before(t) {
			return "", false, s.DeleteTransient(ctx, name)
		}
	}
	return value, true, nil
}

// DeleteTransient removes the value stored under name.
func (s *Store) DeleteTransient(ctx context.Context, name string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM transients WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete transient %q: %w", name, err)
	}
	return nil
}
