package continuation

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibestream/internal/domain/song"
)

// CatalogProviderConfig represents the settings of a catalog provider.
// QuerySuffix is appended to the artist query (e.g. "hits"); the
// "<language> <genre>" fallback query can be turned off.
type CatalogProviderConfig struct {
	QuerySuffix       string `yaml:"query_suffix" mapstructure:"query_suffix"`
	SkipLanguageQuery bool   `yaml:"skip_language_query" mapstructure:"skip_language_query"`
	MaxResults        int    `yaml:"max_results" mapstructure:"max_results" default:"20" validate:"gte=1,lte=100"`
}

// CatalogProvider finds related songs by searching the catalog for the
// seed's primary artist, then for its language and genre.
type CatalogProvider struct {
	catalog Catalog
	config  *CatalogProviderConfig
}

// NewCatalogProvider creates a new CatalogProvider.
func NewCatalogProvider(catalog Catalog, settings map[string]any) (*CatalogProvider, error) {
	if catalog == nil {
		return nil, errors.New("catalog client is required")
	}

	var config CatalogProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	return &CatalogProvider{catalog: catalog, config: &config}, nil
}

// GetCandidates searches the catalog for songs related to seed.
func (p *CatalogProvider) GetCandidates(ctx context.Context, count int, seed song.Song, existingIDs map[string]bool) ([]song.Song, error) {
	if count <= 0 {
		return []song.Song{}, nil
	}

	queries := p.queries(seed)
	if len(queries) == 0 {
		return nil, errors.Newf("no search terms for song %s", seed.ID)
	}

	seen := make(map[string]bool)
	candidates := make([]song.Song, 0, count)
	var lastErr error

	for _, q := range queries {
		results, err := p.catalog.SearchSongs(ctx, q)
		if err != nil {
			zlog.Warn().Msgf("continuation: catalog search failed: query=%q error=%v", q, err)
			lastErr = err
			continue
		}
		if len(results) > p.config.MaxResults {
			results = results[:p.config.MaxResults]
		}
		for _, s := range results {
			if s.ID == "" || s.ID == seed.ID || existingIDs[s.ID] || seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			candidates = append(candidates, s)
		}
		// over-collect so the filter chain has room to reject
		if len(candidates) >= count*2 {
			break
		}
	}

	if len(candidates) == 0 && lastErr != nil {
		return nil, errors.Wrap(lastErr, "catalog search failed")
	}
	return candidates, nil
}

func (p *CatalogProvider) queries(seed song.Song) []string {
	var queries []string
	if artist := seed.PrimaryArtist(); artist != "" {
		queries = append(queries, strings.TrimSpace(artist+" "+p.config.QuerySuffix))
	} else if seed.Name != "" {
		queries = append(queries, seed.Name)
	}
	if !p.config.SkipLanguageQuery {
		if q := strings.TrimSpace(seed.Language + " " + seed.Genre); q != "" {
			queries = append(queries, q+" songs")
		}
	}
	return queries
}

// Name returns the provider name.
func (p *CatalogProvider) Name() string {
	return "catalog"
}
