package mpris

import (
	"strings"
	"testing"
	"time"

	"github.com/quarckster/go-mpris-server/pkg/types"
	"github.com/stretchr/testify/assert"

	"github.com/osa030/vibestream/internal/app/notification"
)

func TestToMetadata(t *testing.T) {
	np := notification.NowPlaying{
		SongID:     "s1",
		Title:      "Kesariya",
		Artist:     "Arijit Singh",
		Album:      "Brahmastra",
		ArtworkURL: "https://img/500x500.jpg",
		Duration:   4*time.Minute + 28*time.Second,
	}

	meta := toMetadata(np)
	assert.Equal(t, "Kesariya", meta.Title)
	assert.Equal(t, []string{"Arijit Singh"}, meta.Artist)
	assert.Equal(t, "Brahmastra", meta.Album)
	assert.Equal(t, "https://img/500x500.jpg", meta.ArtUrl)
	assert.Equal(t, types.Microseconds(268_000_000), meta.Length)
	assert.True(t, strings.HasPrefix(string(meta.TrackId), "/org/mpris/MediaPlayer2/Track/"))
	assert.Equal(t, meta.TrackId, trackID("s1"), "stable per song")
	assert.NotEqual(t, trackID("s1"), trackID("s2"))

	assert.Equal(t, types.Metadata{}, toMetadata(notification.NowPlaying{}))
}

func TestToPlaybackStatus(t *testing.T) {
	tests := []struct {
		in  notification.PlaybackStatus
		out types.PlaybackStatus
	}{
		{in: notification.StatusPlaying, out: types.PlaybackStatusPlaying},
		{in: notification.StatusPaused, out: types.PlaybackStatusPaused},
		{in: notification.StatusStopped, out: types.PlaybackStatusStopped},
		{in: "", out: types.PlaybackStatusStopped},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, toPlaybackStatus(tt.in), "status %q", tt.in)
	}
}
