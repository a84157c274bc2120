package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/vibestream/internal/domain/song"
)

// DuplicateSongFilter rejects candidates that are already queued.
// Detects:
// - Exact song ID matches
// - Remasters, live cuts and edits (normalized name + same primary artist)
// Excludes:
// - Covers (same name but different artist)
type DuplicateSongFilter struct{}

// NewDuplicateSongFilter creates a new duplicate song filter.
func NewDuplicateSongFilter() *DuplicateSongFilter {
	return &DuplicateSongFilter{}
}

// Name returns the filter name.
func (f *DuplicateSongFilter) Name() string {
	return "duplicate_song_filter"
}

// Description returns the filter description.
func (f *DuplicateSongFilter) Description() string {
	return "Rejects songs already in the queue, including remastered or live versions. Covers by other artists are allowed"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateSongFilter) ReturnCodes() []string {
	return []string{"duplicate_song"}
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateSongFilter) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the candidate duplicates a queued song.
func (f *DuplicateSongFilter) Check(ctx context.Context, candidate song.Song, fc Context) Result {
	for _, queued := range fc.Queue {
		if queued.ID == candidate.ID {
			return Reject("duplicate_song")
		}
		if isSameRecording(queued, candidate) {
			return Reject("duplicate_song")
		}
	}
	if fc.Seed.ID != "" && (fc.Seed.ID == candidate.ID || isSameRecording(fc.Seed, candidate)) {
		return Reject("duplicate_song")
	}
	return Accept()
}

// isSameRecording reports whether two songs are versions of the same
// recording by the same primary artist.
func isSameRecording(a, b song.Song) bool {
	if normalizeSongName(a.Name) != normalizeSongName(b.Name) {
		return false
	}
	return isSameArtist(a, b)
}

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),        // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),           // "(Radio Edit)"
		regexp.MustCompile(`\s*\(from\s+.*?\)`),        // "(From "Some Film")"
		regexp.MustCompile(`\s*-\s*live\b`),            // "- Live"
		regexp.MustCompile(`\s*\(live\)`),              // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),     // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`), // "- Single Version"
	}
	htmlEntities = strings.NewReplacer("&quot;", `"`, "&amp;", "&", "&#039;", "'")
	spaces       = regexp.MustCompile(`\s+`)
)

// normalizeSongName removes remaster information and version details.
func normalizeSongName(name string) string {
	// catalog names arrive with HTML entities
	normalized := strings.ToLower(htmlEntities.Replace(name))

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = spaces.ReplaceAllString(normalized, " ")
	return strings.TrimRight(normalized, " -")
}

// isSameArtist checks if two songs have the same primary artist.
func isSameArtist(a, b song.Song) bool {
	artistA, artistB := a.PrimaryArtist(), b.PrimaryArtist()
	if artistA == "" || artistB == "" {
		return false
	}
	return strings.EqualFold(artistA, artistB)
}

func init() {
	Register("duplicate_song_filter", func() Filter {
		return NewDuplicateSongFilter()
	})
}
