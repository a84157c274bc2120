// Package desktop posts "now playing" desktop notifications.
package desktop

import (
	"strings"

	"github.com/osa030/vibestream/internal/app/notification"
)

// message returns the summary and body for np. Updates without a song or
// that only change state produce no notification.
func message(np notification.NowPlaying, lastSongID string) (summary, body string, ok bool) {
	if np.SongID == "" || np.SongID == lastSongID {
		return "", "", false
	}
	parts := []string{np.Artist}
	if np.Album != "" && np.Album != "Single" {
		parts = append(parts, np.Album)
	}
	return np.Title, strings.Join(parts, " · "), true
}
