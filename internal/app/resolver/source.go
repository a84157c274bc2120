// Package resolver decides which audio source to use for a song.
package resolver

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/vibestream/internal/domain/song"
)

// Kind identifies where the audio of a Source comes from.
type Kind int

const (
	KindLocal  Kind = iota // bytes read from the offline blob store
	KindRemote             // URL fetched by the output device
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Source is a resolved, loadable audio source.
type Source struct {
	Kind    Kind
	SongID  string
	Data    []byte // set for KindLocal
	URL     string // set for KindRemote
	Quality string // quality label of the chosen rendition, if known

	// Token is stamped by the playback engine and echoed by the device in
	// its events so stale notifications can be told apart.
	Token uint64
}

// Equal reports whether two sources would play the same audio.
// Local sources compare by song, remote sources by URL.
func (s Source) Equal(o Source) bool {
	if s.Kind != o.Kind {
		return false
	}
	if s.Kind == KindLocal {
		return s.SongID == o.SongID
	}
	return s.URL == o.URL
}

// Quality is the preferred audio quality.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityNormal Quality = "normal"
	QualityHigh   Quality = "high"
)

// ParseQuality parses a quality name. Unknown names map to high.
func ParseQuality(s string) Quality {
	switch Quality(strings.ToLower(strings.TrimSpace(s))) {
	case QualityLow:
		return QualityLow
	case QualityNormal:
		return QualityNormal
	default:
		return QualityHigh
	}
}

// ErrNoRenditions is returned by SelectURL for an empty list.
var ErrNoRenditions = errors.New("no download renditions")

// SelectURL picks a rendition by quality. Renditions are ordered by ascending
// bitrate (labels without digits rank lowest, ties keep their input order);
// low takes the first, high the last and normal the one at index n/2.
func SelectURL(urls []song.DownloadURL, q Quality) (song.DownloadURL, error) {
	if len(urls) == 0 {
		return song.DownloadURL{}, ErrNoRenditions
	}

	sorted := make([]song.DownloadURL, len(urls))
	copy(sorted, urls)
	sort.SliceStable(sorted, func(i, j int) bool {
		return song.Bitrate(sorted[i].Quality) < song.Bitrate(sorted[j].Quality)
	})

	switch q {
	case QualityLow:
		return sorted[0], nil
	case QualityNormal:
		return sorted[len(sorted)/2], nil
	default:
		return sorted[len(sorted)-1], nil
	}
}
