package blobstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibestream/internal/infra/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "blobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestStore_PutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "song-1", []byte("ID3 audio")))

	data, found, err := s.Get(ctx, "song-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("ID3 audio"), data)
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	data, found, err := s.Get(context.Background(), "absent")
	assert.NoError(t, err, "missing id must not be an error")
	assert.False(t, found)
	assert.Nil(t, data)
}

func TestStore_PutOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "song-1", []byte("first")))
	require.NoError(t, s.Put(ctx, "song-1", []byte("second")))

	data, found, err := s.Get(ctx, "song-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("second"), data)

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(len("second")), entries[0].Size)
}

func TestStore_ConcurrentPutSameID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Put(ctx, "song-1", []byte{byte(i)})
		}(i)
	}
	wg.Wait()

	data, found, err := s.Get(ctx, "song-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, data, 1, "one complete write wins")
}

func TestStore_DeleteAndHas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "song-1", []byte("x")))

	has, err := s.Has(ctx, "song-1")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.Delete(ctx, "song-1"))
	require.NoError(t, s.Delete(ctx, "song-1"), "deleting twice is fine")

	has, err = s.Has(ctx, "song-1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStore_ListOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.UnixMilli(1700000000000)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	require.NoError(t, s.Put(ctx, "old", []byte("a")))
	require.NoError(t, s.Put(ctx, "new", []byte("bb")))

	ids, err := s.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)
}

func TestStore_PutRequiresID(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Put(context.Background(), "", []byte("x")))
}
