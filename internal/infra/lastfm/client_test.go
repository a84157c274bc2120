package lastfm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{APIKey: "test_key", BaseURL: server.URL + "/"})
	require.NoError(t, err)
	return client
}

func TestGetSimilarTracks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "track.getSimilar", r.URL.Query().Get("method"))
		assert.Equal(t, "Arijit Singh", r.URL.Query().Get("artist"))
		assert.Equal(t, "Kesariya", r.URL.Query().Get("track"))
		assert.Equal(t, "test_key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))

		fmt.Fprint(w, `{
			"similartracks": {
				"track": [
					{"name": "Apna Bana Le", "match": 0.93, "artist": {"name": "Arijit Singh"}},
					{"name": "Raataan Lambiyan", "match": "0.5", "artist": {"name": "Jubin Nautiyal"}}
				]
			}
		}`)
	})

	tracks, err := client.GetSimilarTracks(context.Background(), "Kesariya", "Arijit Singh", 10)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, SimilarTrack{Name: "Apna Bana Le", Artist: "Arijit Singh", Match: 0.93}, tracks[0])
	assert.InDelta(t, 0.5, tracks[1].Match, 1e-9)
}

func TestGetSimilarTracks_RequiresNames(t *testing.T) {
	client, err := New(Config{APIKey: "k"})
	require.NoError(t, err)

	_, err = client.GetSimilarTracks(context.Background(), "", "artist", 5)
	assert.Error(t, err)
}

func TestGetTopTags(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "track.getTopTags", r.URL.Query().Get("method"))
		assert.Equal(t, "test_artist", r.URL.Query().Get("artist"))
		assert.Equal(t, "test_track", r.URL.Query().Get("track"))

		fmt.Fprint(w, `{
			"toptags": {
				"tag": [
					{"name": "rock", "count": 100, "url": "http://last.fm/tag/rock"},
					{"name": "alternative", "count": 80, "url": "http://last.fm/tag/alternative"},
					{"name": "90s", "count": 20, "url": "http://last.fm/tag/90s"}
				]
			}
		}`)
	})

	ctx := context.Background()
	tags, err := client.GetTopTags(ctx, "test_track", "test_artist", 2)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
	assert.Equal(t, "rock", tags[0].Name)
	assert.Equal(t, 100, tags[0].Count)

	tagsCached, err := client.GetTopTags(ctx, "test_track", "test_artist", 2)
	require.NoError(t, err)
	assert.Equal(t, tags, tagsCached)
	assert.Equal(t, int32(1), calls.Load(), "second lookup is served from cache")
}

func TestGetTopTracks(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "tag.getTopTracks", r.URL.Query().Get("method"))
		assert.Equal(t, "rock", r.URL.Query().Get("tag"))

		fmt.Fprint(w, `{
			"tracks": {
				"track": [
					{"name": "Track 1", "artist": {"name": "Artist 1"}, "listeners": "1000"},
					{"name": "Track 2", "artist": {"name": "Artist 2"}, "listeners": "500"}
				]
			}
		}`)
	})

	ctx := context.Background()
	tracks, err := client.GetTopTracks(ctx, "rock", 5)
	require.NoError(t, err)
	assert.Equal(t, []TopTrack{{Name: "Track 1", Artist: "Artist 1"}, {Name: "Track 2", Artist: "Artist 2"}}, tracks)

	tracksCached, err := client.GetTopTracks(ctx, "rock", 5)
	require.NoError(t, err)
	assert.Equal(t, tracks, tracksCached)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetChartTopTracks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "chart.getTopTracks", r.URL.Query().Get("method"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"tracks": {"track": [{"name": "Hit", "artist": {"name": "Star"}}]}}`)
	})

	tracks, err := client.GetChartTopTracks(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, []TopTrack{{Name: "Hit", Artist: "Star"}}, tracks)
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": 10, "message": "Invalid API key"}`)
	})

	_, err := client.GetChartTopTracks(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestHTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetTopTracks(context.Background(), "rock", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
