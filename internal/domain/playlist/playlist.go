// Package playlist provides the user playlist domain entity.
package playlist

import (
	"time"

	"github.com/osa030/vibestream/internal/domain/song"
)

// Playlist represents a user-created playlist.
type Playlist struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Songs       []song.Song `json:"songs"`
	CreatedAt   int64       `json:"createdAt"` // unix milliseconds
	Creator     string      `json:"creator,omitempty"`
}

// New creates an empty playlist.
func New(id, title, description, creator string, now time.Time) Playlist {
	return Playlist{
		ID:          id,
		Title:       title,
		Description: description,
		Songs:       []song.Song{},
		CreatedAt:   now.UnixMilli(),
		Creator:     creator,
	}
}

// SongIDs returns all song IDs in the playlist.
func (p *Playlist) SongIDs() []string {
	ids := make([]string, len(p.Songs))
	for i, s := range p.Songs {
		ids[i] = s.ID
	}
	return ids
}

// Contains reports whether the playlist already holds the song.
func (p *Playlist) Contains(songID string) bool {
	for _, s := range p.Songs {
		if s.ID == songID {
			return true
		}
	}
	return false
}

// TotalDuration returns the total duration of all songs.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range p.Songs {
		total += s.Duration
	}
	return total
}
