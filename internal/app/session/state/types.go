// Package state provides the process-wide user state: likes, playlists,
// history and offline downloads.
package state

import (
	"time"

	"github.com/osa030/vibestream/internal/domain/playlist"
	"github.com/osa030/vibestream/internal/domain/song"
	"github.com/osa030/vibestream/internal/domain/user"
)

// NoticeKind represents the kind of a user-visible notice.
type NoticeKind int

const (
	NoticeInfo           NoticeKind = iota // General information
	NoticeUnavailable                      // A song could not be played
	NoticeDownloadFailed                   // A download did not complete
	NoticeLoginFailed                      // Login or signup was rejected
	NoticePlaybackError                    // The device reported an error
)

// String returns the string representation of the notice kind.
func (k NoticeKind) String() string {
	switch k {
	case NoticeInfo:
		return "info"
	case NoticeUnavailable:
		return "unavailable"
	case NoticeDownloadFailed:
		return "download_failed"
	case NoticeLoginFailed:
		return "login_failed"
	case NoticePlaybackError:
		return "playback_error"
	default:
		return "unknown"
	}
}

// Notice is a message for the user.
type Notice struct {
	Kind    NoticeKind
	Message string
	At      time.Time
}

// Snapshot is a copy of the whole state.
type Snapshot struct {
	User            *user.Profile
	LikedSongs      []song.Song
	Playlists       []playlist.Playlist
	History         []song.Song
	FavoriteArtists []string
	DownloadedIDs   []string
	Volume          float64
}

// localDocument is what is persisted on this device.
type localDocument struct {
	User          *user.Profile    `json:"user,omitempty"`
	Private       user.PrivateData `json:"private"`
	DownloadedIDs []string         `json:"downloadedIds"`
	Volume        float64          `json:"volume"`
}
