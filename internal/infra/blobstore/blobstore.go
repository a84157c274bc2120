// Package blobstore persists downloaded audio for offline playback.
package blobstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibestream/internal/infra/database"
)

// Entry describes a stored blob without its payload.
type Entry struct {
	ID       string
	Size     int64
	StoredAt time.Time
}

// Store is a durable map from song ID to raw audio bytes.
// Entries are never evicted.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a store on an opened database.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Put stores data under id, replacing any previous entry.
func (s *Store) Put(ctx context.Context, id string, data []byte) error {
	if id == "" {
		return errors.New("blob id is required")
	}
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO offline_songs (id, data, size, stored_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data, size = excluded.size, stored_at = excluded.stored_at`,
			id, data, len(data), s.now().UnixMilli())
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "failed to store blob %s", id)
	}
	zlog.Debug().Msgf("blobstore: stored: id=%s size=%s", id, humanize.IBytes(uint64(len(data))))
	return nil
}

// Get returns the bytes stored under id. A missing id is reported with
// found=false and a nil error.
func (s *Store) Get(ctx context.Context, id string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM offline_songs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to read blob %s", id)
	}
	return data, true, nil
}

// Has reports whether id is stored without loading its payload.
func (s *Store) Has(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM offline_songs WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to look up blob %s", id)
	}
	return true, nil
}

// Delete removes id. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM offline_songs WHERE id = ?`, id); err != nil {
		return errors.Wrapf(err, "failed to delete blob %s", id)
	}
	return nil
}

// List returns all stored entries, most recent first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, size, stored_at FROM offline_songs ORDER BY stored_at DESC, id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list blobs")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var storedAt int64
		if err := rows.Scan(&e.ID, &e.Size, &storedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan blob entry")
		}
		e.StoredAt = time.UnixMilli(storedAt)
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "failed to iterate blobs")
}

// IDs returns the IDs of all stored entries.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids, nil
}
