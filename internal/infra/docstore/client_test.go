package docstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryServer is a minimal in-memory document store.
type memoryServer struct {
	mu     sync.Mutex
	docs   map[string][]byte
	writes int
	auth   []string
}

func (m *memoryServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := strings.TrimPrefix(r.URL.Path, "/docs/")
	m.auth = append(m.auth, r.Header.Get("Authorization"))
	switch r.Method {
	case http.MethodGet:
		doc, ok := m.docs[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(doc)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		m.docs[name] = body
		m.writes++
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T) (*Client, *memoryServer) {
	t.Helper()
	mem := &memoryServer{docs: map[string][]byte{}}
	server := httptest.NewServer(mem)
	t.Cleanup(server.Close)

	c, err := New(Config{BaseURL: server.URL + "/docs", Token: "secret"})
	require.NoError(t, err)
	return c, mem
}

type userList struct {
	Users []string `json:"users"`
}

func TestClient_WriteRead(t *testing.T) {
	c, mem := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Write(ctx, "users.json", userList{Users: []string{"a@example.com"}}))

	var got userList
	found, err := c.Read(ctx, "users.json", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"a@example.com"}, got.Users)

	assert.Equal(t, 1, mem.writes)
	assert.Equal(t, "Bearer secret", mem.auth[0])
}

func TestClient_ReadMissing(t *testing.T) {
	c, _ := newTestClient(t)

	var got userList
	found, err := c.Read(context.Background(), "user_nobody.json", &got)
	assert.NoError(t, err, "a missing document is not an error")
	assert.False(t, found)
}

func TestClient_ReadNullDocument(t *testing.T) {
	c, mem := newTestClient(t)
	mem.docs["empty.json"] = []byte("null")

	var got userList
	found, err := c.Read(context.Background(), "empty.json", &got)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestClient_ReadBypassesCache(t *testing.T) {
	var seen *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		_ = json.NewEncoder(w).Encode(userList{})
	}))
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	var got userList
	_, err = c.Read(context.Background(), "users.json", &got)
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, "no-cache", seen.Header.Get("Cache-Control"))
	assert.NotEmpty(t, seen.URL.Query().Get("t"))
	assert.Empty(t, seen.Header.Get("Authorization"))
}

func TestClient_WriteServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	err = c.Write(context.Background(), "users.json", userList{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
