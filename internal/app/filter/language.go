package filter

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/vibestream/internal/domain/song"
)

// LanguageConfig represents the configuration for LanguageFilter.
type LanguageConfig struct {
	MatchGenre bool `yaml:"match_genre" mapstructure:"match_genre"`
}

// LanguageFilter keeps continuation candidates in the seed's language and,
// optionally, its genre. Seeds without a language accept everything.
type LanguageFilter struct {
	config LanguageConfig
}

// NewLanguageFilter creates a new language filter.
func NewLanguageFilter() *LanguageFilter {
	return &LanguageFilter{}
}

func (f *LanguageFilter) Name() string {
	return "language_filter"
}

func (f *LanguageFilter) Description() string {
	return "Rejects candidates whose language (and optionally genre) differs from the current song"
}

func (f *LanguageFilter) ReturnCodes() []string {
	return []string{"language_mismatch", "genre_mismatch"}
}

func (f *LanguageFilter) ValidateConfig(settings map[string]any) error {
	var config LanguageConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	f.config = config
	return nil
}

func (f *LanguageFilter) Check(ctx context.Context, candidate song.Song, fc Context) Result {
	if differs(fc.Seed.Language, candidate.Language) {
		return Reject("language_mismatch")
	}
	if f.config.MatchGenre && differs(fc.Seed.Genre, candidate.Genre) {
		return Reject("genre_mismatch")
	}
	return Accept()
}

// differs reports a mismatch only when the seed value is known.
func differs(seed, candidate string) bool {
	if seed == "" {
		return false
	}
	return !strings.EqualFold(strings.TrimSpace(seed), strings.TrimSpace(candidate))
}

func init() {
	Register("language_filter", func() Filter {
		return NewLanguageFilter()
	})
}
