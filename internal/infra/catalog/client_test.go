package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/vibestream/internal/domain/song"
)

const songJSON = `{
	"id": "abc123",
	"name": "Kesariya",
	"year": "2022",
	"duration": "268",
	"language": "hindi",
	"album": {"id": "al1", "name": "Brahmastra", "url": "https://example.com/al1"},
	"image": [
		{"quality": "50x50", "url": "https://img/50"},
		{"quality": "150x150", "url": "https://img/150"},
		{"quality": "500x500", "url": "https://img/500"}
	],
	"artists": {
		"primary": [{"id": "ar1", "name": "Arijit Singh", "role": "singer", "image": []}],
		"featured": [],
		"all": []
	},
	"downloadUrl": [
		{"quality": "12kbps", "url": "https://cdn/12"},
		{"quality": "320kbps", "url": "https://cdn/320"},
		{"quality": "96kbps", "url": "https://cdn/96"}
	]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{BaseURL: server.URL + "/api/", Timeout: 2 * time.Second})
}

func TestSearchSongs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/search/songs", r.URL.Path)
		assert.Equal(t, "kesariya arijit", r.URL.Query().Get("query"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success": true, "data": {"total": 1, "results": [%s]}}`, songJSON)
	})

	songs, err := client.SearchSongs(context.Background(), "kesariya arijit")
	require.NoError(t, err)
	require.Len(t, songs, 1)

	s := songs[0]
	assert.Equal(t, "abc123", s.ID)
	assert.Equal(t, "Kesariya", s.Name)
	assert.Equal(t, 268*time.Second, s.Duration)
	assert.Equal(t, "Arijit Singh", s.PrimaryArtist())
	assert.Equal(t, "https://img/500", s.ImageURL())
	assert.Len(t, s.DownloadURLs, 3)
	assert.Equal(t, "Brahmastra", s.Album.Name)
}

func TestSearchSongs_NumericDuration(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {"results": [{"id": "x", "name": "X", "duration": 180}]}}`)
	})

	songs, err := client.SearchSongs(context.Background(), "x")
	require.NoError(t, err)
	require.Len(t, songs, 1)
	assert.Equal(t, 3*time.Minute, songs[0].Duration)
}

func TestSearchSongs_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.SearchSongs(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSearchAlbumsAndArtists(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/search/albums":
			fmt.Fprint(w, `{"data": {"results": [{"id": "al1", "name": "Brahmastra", "year": 2022,
				"artists": {"primary": [{"id": "ar1", "name": "Pritam"}]}}]}}`)
		case "/api/search/artists":
			fmt.Fprint(w, `{"data": {"results": [{"id": "ar1", "name": "Pritam", "image": [{"quality": "50x50", "url": "u"}]}]}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	ctx := context.Background()

	albums, err := client.SearchAlbums(ctx, "brahmastra")
	require.NoError(t, err)
	require.Len(t, albums, 1)
	assert.Equal(t, "2022", albums[0].Year)
	assert.Equal(t, "Pritam", albums[0].Artists[0].Name)

	artists, err := client.SearchArtists(ctx, "pritam")
	require.NoError(t, err)
	require.Len(t, artists, 1)
	assert.Equal(t, "ar1", artists[0].ID)
}

func TestGetAlbumDetails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/albums", r.URL.Path)
		if r.URL.Query().Get("id") == "missing" {
			fmt.Fprint(w, `{"data": null}`)
			return
		}
		fmt.Fprintf(w, `{"data": {"id": "al1", "name": "Brahmastra", "songs": [%s]}}`, songJSON)
	})
	ctx := context.Background()

	album, err := client.GetAlbumDetails(ctx, "al1")
	require.NoError(t, err)
	require.Len(t, album.Songs, 1)
	assert.Equal(t, "abc123", album.Songs[0].ID)

	_, err = client.GetAlbumDetails(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStreamURLs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/songs", r.URL.Path)
		switch r.URL.Query().Get("ids") {
		case "abc123":
			fmt.Fprintf(w, `{"data": [%s]}`, songJSON)
		case "bare":
			fmt.Fprint(w, `{"data": [{"id": "bare", "name": "Bare", "downloadUrl": []}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	urls, err := client.StreamURLs(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, []song.DownloadURL{
		{Quality: "12kbps", URL: "https://cdn/12"},
		{Quality: "320kbps", URL: "https://cdn/320"},
		{Quality: "96kbps", URL: "https://cdn/96"},
	}, urls)

	_, err = client.StreamURLs(ctx, "bare")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = client.StreamURLs(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClient_ContextCanceled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.SearchSongs(ctx, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
