package download

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibestream/internal/domain/song"
)

type memBlobs struct {
	mu     sync.Mutex
	data   map[string][]byte
	putErr error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string][]byte)}
}

func (b *memBlobs) Put(ctx context.Context, id string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.data[id] = data
	return nil
}

func (b *memBlobs) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, id)
	return nil
}

func (b *memBlobs) get(id string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[id]
	return d, ok
}

type memSink struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (s *memSink) Save(filename string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	s.files[filename] = data
	return "/downloads/" + filename, nil
}

type recorder struct {
	mu         sync.Mutex
	updates    []Task
	downloaded map[string]bool
}

func (r *recorder) onUpdate(t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, t)
}

func (r *recorder) onDownloaded(id string, downloaded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.downloaded == nil {
		r.downloaded = make(map[string]bool)
	}
	r.downloaded[id] = downloaded
}

func (r *recorder) snapshot() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Task(nil), r.updates...)
}

func newTestManager(t *testing.T, blobs BlobStore, sink FileSink, linger time.Duration) (*Manager, *recorder) {
	t.Helper()
	m := NewManager(blobs, sink, Config{CompletionLinger: linger})
	rec := &recorder{}
	m.SetUpdateCallback(rec.onUpdate)
	m.SetDownloadedCallback(rec.onDownloaded)
	t.Cleanup(m.Close)
	return m, rec
}

// payloadServer writes body in ten chunks with a Content-Length header.
func payloadServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		chunk := len(body) / 10
		for i := 0; i < len(body); i += chunk {
			end := min(i+chunk, len(body))
			_, _ = w.Write(body[i:end])
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStartDownload_Success(t *testing.T) {
	body := bytes.Repeat([]byte("a"), 1000)
	server := payloadServer(t, body)
	blobs := newMemBlobs()
	sink := &memSink{}
	m, rec := newTestManager(t, blobs, sink, time.Hour)

	s := song.Song{ID: "s1", Name: "Kesariya"}
	task, err := m.StartDownload(context.Background(), s, server.URL, "kesariya.mp3")
	require.NoError(t, err)
	assert.Equal(t, StatusDownloading, task.Status)
	assert.NotEmpty(t, task.ID)
	m.Wait()

	data, ok := blobs.get("s1")
	require.True(t, ok)
	assert.Equal(t, body, data)
	assert.Equal(t, body, sink.files["kesariya.mp3"])
	assert.True(t, rec.downloaded["s1"])

	updates := rec.snapshot()
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, StatusCompleted, last.Status)
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, "/downloads/kesariya.mp3", last.SavedPath)

	// percent only moves forward and never repeats
	prev := -1
	for _, u := range updates[1 : len(updates)-1] {
		assert.Greater(t, u.Percent, prev)
		prev = u.Percent
	}

	active, ok := m.Active()
	require.True(t, ok, "completed task lingers")
	assert.Equal(t, StatusCompleted, active.Status)
}

func TestStartDownload_ClearedAfterLinger(t *testing.T) {
	server := payloadServer(t, bytes.Repeat([]byte("a"), 100))
	m, _ := newTestManager(t, newMemBlobs(), nil, 10*time.Millisecond)

	_, err := m.StartDownload(context.Background(), song.Song{ID: "s1"}, server.URL, "f.mp3")
	require.NoError(t, err)
	m.Wait()

	require.Eventually(t, func() bool {
		_, ok := m.Active()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestStartDownload_SecondRequestRejected(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("data"))
	}))
	t.Cleanup(server.Close)

	m, _ := newTestManager(t, newMemBlobs(), nil, 0)

	_, err := m.StartDownload(context.Background(), song.Song{ID: "s1"}, server.URL, "a.mp3")
	require.NoError(t, err)

	_, err = m.StartDownload(context.Background(), song.Song{ID: "s2"}, server.URL, "b.mp3")
	assert.ErrorIs(t, err, ErrDownloadInProgress)

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, "s1", active.Song.ID)

	close(release)
	m.Wait()
}

func TestStartDownload_HTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	blobs := newMemBlobs()
	m, rec := newTestManager(t, blobs, nil, time.Hour)

	_, err := m.StartDownload(context.Background(), song.Song{ID: "s1"}, server.URL, "a.mp3")
	require.NoError(t, err)
	m.Wait()

	_, ok := m.Active()
	assert.False(t, ok, "failed task is cleared")

	updates := rec.snapshot()
	failed := 0
	for _, u := range updates {
		if u.Status == StatusFailed {
			failed++
			assert.Error(t, u.Err)
		}
	}
	assert.Equal(t, 1, failed)
	_, stored := blobs.get("s1")
	assert.False(t, stored)
}

func TestStartDownload_BlobFailureSwallowed(t *testing.T) {
	server := payloadServer(t, bytes.Repeat([]byte("a"), 100))
	blobs := newMemBlobs()
	blobs.putErr = errors.New("disk full")
	m, rec := newTestManager(t, blobs, nil, time.Hour)

	_, err := m.StartDownload(context.Background(), song.Song{ID: "s1"}, server.URL, "a.mp3")
	require.NoError(t, err)
	m.Wait()

	updates := rec.snapshot()
	assert.Equal(t, StatusCompleted, updates[len(updates)-1].Status)
	assert.False(t, rec.downloaded["s1"])
}

func TestStartDownload_UnknownLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("part one "))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("part two"))
	}))
	t.Cleanup(server.Close)

	m, rec := newTestManager(t, newMemBlobs(), nil, time.Hour)
	_, err := m.StartDownload(context.Background(), song.Song{ID: "s1"}, server.URL, "a.mp3")
	require.NoError(t, err)
	m.Wait()

	updates := rec.snapshot()
	require.Len(t, updates, 2, "start and completion only")
	assert.Equal(t, 0, updates[0].Percent)
	assert.Equal(t, 100, updates[1].Percent)
}

func TestStartDownload_RequiresURL(t *testing.T) {
	m, _ := newTestManager(t, newMemBlobs(), nil, 0)
	_, err := m.StartDownload(context.Background(), song.Song{ID: "s1"}, "", "a.mp3")
	assert.ErrorIs(t, err, ErrNoURL)
}

func TestQuickDownload(t *testing.T) {
	requested := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested <- r.URL.Path
		_, _ = w.Write([]byte("x"))
	}))
	t.Cleanup(server.Close)

	m, rec := newTestManager(t, newMemBlobs(), nil, time.Hour)
	s := song.Song{
		ID:      "s1",
		Name:    "Kesariya",
		Artists: song.Artists{Primary: []song.ArtistRef{{Name: "Arijit Singh"}}},
		DownloadURLs: []song.DownloadURL{
			{Quality: "320kbps", URL: server.URL + "/320"},
			{Quality: "96kbps", URL: server.URL + "/96"},
		},
	}

	task, err := m.QuickDownload(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "Kesariya (320kbps) - Arijit Singh.mp3", task.Filename)
	m.Wait()
	assert.Equal(t, "/320", <-requested)
	assert.True(t, rec.downloaded["s1"])

	_, err = m.QuickDownload(context.Background(), song.Song{ID: "none"})
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	blobs := newMemBlobs()
	blobs.data["s1"] = []byte("x")
	m, rec := newTestManager(t, blobs, nil, 0)

	require.NoError(t, m.Remove(context.Background(), "s1"))
	_, ok := blobs.get("s1")
	assert.False(t, ok)
	downloaded, seen := rec.downloaded["s1"]
	assert.True(t, seen)
	assert.False(t, downloaded)
}
