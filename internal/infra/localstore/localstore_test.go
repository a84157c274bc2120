package localstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibestream/internal/infra/database"
)

type doc struct {
	Liked  []string `json:"liked"`
	Volume int      `json:"volume"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestStore_SaveLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "session", doc{Liked: []string{"a", "b"}, Volume: 70}))

	var got doc
	found, err := s.Load(ctx, "session", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, doc{Liked: []string{"a", "b"}, Volume: 70}, got)

	require.NoError(t, s.Save(ctx, "session", doc{Volume: 10}))
	found, err = s.Load(ctx, "session", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 10, got.Volume)
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)

	var got doc
	found, err := s.Load(context.Background(), "absent", &got)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "k", doc{}))
	require.NoError(t, s.Delete(ctx, "k"))

	var got doc
	found, err := s.Load(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}
