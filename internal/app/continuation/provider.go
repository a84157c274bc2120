// Package continuation provides the strategies used to extend a queue that
// ran out of songs.
package continuation

import (
	"context"

	"github.com/osa030/vibestream/internal/domain/song"
)

// Provider is the interface for continuation song providers.
// Different implementations find related songs through various strategies
// (e.g., catalog search by artist, Last.fm similarity).
type Provider interface {
	// GetCandidates retrieves continuation candidates.
	// count: the number of candidates wanted
	// seed: the song the queue ended on
	// existingIDs: songs already in the queue (for duplicate avoidance)
	GetCandidates(ctx context.Context, count int, seed song.Song, existingIDs map[string]bool) ([]song.Song, error)

	// Name returns the provider name (used in config).
	Name() string
}

// Catalog defines the catalog operations needed by providers.
type Catalog interface {
	SearchSongs(ctx context.Context, query string) ([]song.Song, error)
}
