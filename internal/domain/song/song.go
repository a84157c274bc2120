// Package song provides the Song domain entity.
package song

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// PlaceholderImageURL is returned when a song carries no artwork.
const PlaceholderImageURL = "https://picsum.photos/500/500"

// Image represents one artwork rendition.
type Image struct {
	Quality string `json:"quality"` // e.g. "150x150"
	URL     string `json:"url"`
}

// DownloadURL represents one pre-resolved audio rendition.
type DownloadURL struct {
	Quality string `json:"quality"` // e.g. "320kbps"
	URL     string `json:"url"`
}

// ArtistRef is a minimal artist reference embedded in a song.
type ArtistRef struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Role   string  `json:"role"`
	Images []Image `json:"image"`
}

// Artists groups the artist references of a song.
type Artists struct {
	Primary  []ArtistRef `json:"primary"`
	Featured []ArtistRef `json:"featured"`
	All      []ArtistRef `json:"all"`
}

// AlbumRef is a minimal album reference embedded in a song.
type AlbumRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Song represents a catalog song. Songs are immutable once fetched.
type Song struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Album        AlbumRef      `json:"album"`
	Year         string        `json:"year"`
	Duration     time.Duration `json:"duration"`
	Language     string        `json:"language"`
	Genre        string        `json:"genre"`
	Images       []Image       `json:"image"`
	Artists      Artists       `json:"artists"`
	DownloadURLs []DownloadURL `json:"downloadUrl"`
}

// PrimaryArtist returns the name of the first primary artist, or "".
func (s *Song) PrimaryArtist() string {
	if len(s.Artists.Primary) == 0 {
		return ""
	}
	return s.Artists.Primary[0].Name
}

// ArtistNames returns the names of the primary artists.
func (s *Song) ArtistNames() []string {
	names := make([]string, 0, len(s.Artists.Primary))
	for _, a := range s.Artists.Primary {
		names = append(names, a.Name)
	}
	return names
}

// ImageURL returns the 500x500 rendition (index 2), falling back to the last
// available image, or the placeholder when there is none.
func (s *Song) ImageURL() string {
	return ImageURL(s.Images)
}

// ImageURL picks the preferred artwork from images.
func ImageURL(images []Image) string {
	if len(images) == 0 {
		return PlaceholderImageURL
	}
	if len(images) > 2 && images[2].URL != "" {
		return images[2].URL
	}
	return images[len(images)-1].URL
}

// DownloadFilename returns the file name used when saving the song.
func (s *Song) DownloadFilename(quality string) string {
	artist := s.PrimaryArtist()
	if artist == "" {
		artist = "Artist"
	}
	if quality == "" {
		return fmt.Sprintf("%s - %s.mp3", s.Name, artist)
	}
	return fmt.Sprintf("%s (%s) - %s.mp3", s.Name, quality, artist)
}

// Bitrate extracts the numeric bitrate from a quality label.
// "320kbps" yields 320; labels without digits yield 0.
func Bitrate(quality string) int {
	var b strings.Builder
	for _, r := range quality {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0
	}
	return n
}
