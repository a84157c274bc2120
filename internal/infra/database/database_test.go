package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_CreatesSchema(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"offline_songs", "documents"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}

	// running the migration twice is harmless
	assert.NoError(t, Migrate(db))
}

func TestWithTx_Commit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO documents (key, value, updated_at) VALUES (?, ?, ?)`, "k", "{}", 1)
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithTx_Rollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	testErr := errors.New("test error")

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO documents (key, value, updated_at) VALUES (?, ?, ?)`, "k", "{}", 1); err != nil {
			return err
		}
		return testErr
	})
	assert.ErrorIs(t, err, testErr)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&count))
	assert.Equal(t, 0, count)
}
