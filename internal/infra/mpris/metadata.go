// Package mpris exposes the player on the MPRIS D-Bus interface.
package mpris

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/osa030/vibestream/internal/app/notification"
)

// Controller is the player surface driven by media keys.
type Controller interface {
	Next(ctx context.Context) error
	Previous() error
	TogglePlay() error
	SetPlaying(playing bool) error
	Seek(pos time.Duration) error
	Position() time.Duration
	Volume() float64
	SetVolume(v float64)
	Shuffle() bool
	SetShuffle(shuffle bool)
}

func toMetadata(np notification.NowPlaying) types.Metadata {
	if np.SongID == "" {
		return types.Metadata{}
	}
	meta := types.Metadata{
		TrackId: trackID(np.SongID),
		Length:  types.Microseconds(np.Duration.Microseconds()),
		Title:   np.Title,
		Artist:  []string{np.Artist},
		Album:   np.Album,
	}
	if np.ArtworkURL != "" {
		meta.ArtUrl = np.ArtworkURL
	}
	return meta
}

func toPlaybackStatus(s notification.PlaybackStatus) types.PlaybackStatus {
	switch s {
	case notification.StatusPlaying:
		return types.PlaybackStatusPlaying
	case notification.StatusPaused:
		return types.PlaybackStatusPaused
	default:
		return types.PlaybackStatusStopped
	}
}

func trackID(songID string) dbus.ObjectPath {
	h := fnv.New64a()
	h.Write([]byte(songID))
	return dbus.ObjectPath(fmt.Sprintf("/org/mpris/MediaPlayer2/Track/%x", h.Sum64()))
}
