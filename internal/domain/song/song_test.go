package song

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitrate(t *testing.T) {
	tests := []struct {
		name     string
		quality  string
		expected int
	}{
		{name: "kbps label", quality: "320kbps", expected: 320},
		{name: "low bitrate", quality: "12kbps", expected: 12},
		{name: "spaces and units", quality: "96 kbps", expected: 96},
		{name: "no digits", quality: "lossless", expected: 0},
		{name: "empty", quality: "", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Bitrate(tt.quality))
		})
	}
}

func TestSong_ImageURL(t *testing.T) {
	tests := []struct {
		name     string
		images   []Image
		expected string
	}{
		{
			name:     "no images uses placeholder",
			images:   nil,
			expected: PlaceholderImageURL,
		},
		{
			name: "three renditions picks index 2",
			images: []Image{
				{Quality: "50x50", URL: "small"},
				{Quality: "150x150", URL: "medium"},
				{Quality: "500x500", URL: "large"},
			},
			expected: "large",
		},
		{
			name: "fewer renditions falls back to last",
			images: []Image{
				{Quality: "50x50", URL: "small"},
				{Quality: "150x150", URL: "medium"},
			},
			expected: "medium",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Song{Images: tt.images}
			assert.Equal(t, tt.expected, s.ImageURL())
		})
	}
}

func TestSong_DownloadFilename(t *testing.T) {
	s := Song{
		Name:    "Tum Hi Ho",
		Artists: Artists{Primary: []ArtistRef{{Name: "Arijit Singh"}, {Name: "Mithoon"}}},
	}
	assert.Equal(t, "Tum Hi Ho (320kbps) - Arijit Singh.mp3", s.DownloadFilename("320kbps"))
	assert.Equal(t, "Tum Hi Ho - Arijit Singh.mp3", s.DownloadFilename(""))

	anonymous := Song{Name: "Untitled"}
	assert.Equal(t, "Untitled (96kbps) - Artist.mp3", anonymous.DownloadFilename("96kbps"))
}

func TestSong_PrimaryArtist(t *testing.T) {
	s := Song{Artists: Artists{Primary: []ArtistRef{{Name: "A"}, {Name: "B"}}}}
	assert.Equal(t, "A", s.PrimaryArtist())
	assert.Equal(t, []string{"A", "B"}, s.ArtistNames())

	empty := Song{}
	assert.Empty(t, empty.PrimaryArtist())
	assert.Empty(t, empty.ArtistNames())
}
