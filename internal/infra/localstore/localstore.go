// Package localstore persists small JSON documents on the local device.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

// Store is a key/value store of JSON documents backed by SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a store on an opened database.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Load decodes the document stored under key into v.
// It returns false when the key does not exist.
func (s *Store) Load(ctx context.Context, key string, v any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM documents WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to read document %s", key)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, errors.Wrapf(err, "failed to decode document %s", key)
	}
	return true, nil
}

// Save encodes v and stores it under key.
func (s *Store) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode document %s", key)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), s.now().UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "failed to write document %s", key)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key); err != nil {
		return errors.Wrapf(err, "failed to delete document %s", key)
	}
	return nil
}
