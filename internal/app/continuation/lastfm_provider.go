package continuation

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/vibestream/internal/domain/song"
	"github.com/osa030/vibestream/internal/infra/lastfm"
)

// LastFmClient defines the interface for Last.fm operations.
type LastFmClient interface {
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.SimilarTrack, error)
	GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.Tag, error)
	GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.TopTrack, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.TopTrack, error)
}

type LastFmProviderConfig struct {
	APIKey        string  `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	SimilarLimit  int     `yaml:"similar_limit" mapstructure:"similar_limit" default:"15" validate:"gte=1,lte=100"`
	TagCount      int     `yaml:"tag_count" mapstructure:"tag_count" default:"2" validate:"gte=1"`
	TagWeight     float64 `yaml:"tag_weight" mapstructure:"tag_weight" default:"0.4" validate:"gte=0,lte=1.0"`
	SimilarWeight float64 `yaml:"similar_weight" mapstructure:"similar_weight" default:"0.6" validate:"gte=0,lte=1.0"`
	Parallelism   int     `yaml:"parallelism" mapstructure:"parallelism" default:"4" validate:"gte=1,lte=16"`
}

// LastFmProvider suggests songs using Last.fm with hybrid scoring.
// Similar-track and tag-based candidates are merged with configurable
// weights and looked up in the catalog.
type LastFmProvider struct {
	lastfm  LastFmClient
	catalog Catalog

	// Cache for catalog lookups, keyed by "name:artist". Misses are cached as nil.
	searchCache map[string]*song.Song
	cacheMutex  sync.RWMutex

	config *LastFmProviderConfig
	rng    func(n int) int
}

// scoredSong represents a song with its hybrid score.
type scoredSong struct {
	Song  song.Song
	Score float64
}

// NewLastFmProvider creates a new LastFmProvider.
func NewLastFmProvider(catalog Catalog, settings map[string]any) (*LastFmProvider, error) {
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}

	config, err := decodeLastFmConfig(settings)
	if err != nil {
		return nil, err
	}

	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}

	return newLastFmProvider(client, catalog, config)
}

func decodeLastFmConfig(settings map[string]any) (*LastFmProviderConfig, error) {
	var config LastFmProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	if diff := config.TagWeight + config.SimilarWeight - 1.0; diff > 1e-9 || diff < -1e-9 {
		return nil, errors.New("tag weight and similar weight must sum to 1.0")
	}
	return &config, nil
}

func newLastFmProvider(client LastFmClient, catalog Catalog, config *LastFmProviderConfig) (*LastFmProvider, error) {
	if catalog == nil {
		return nil, errors.New("catalog client is required")
	}
	return &LastFmProvider{
		lastfm:      client,
		catalog:     catalog,
		searchCache: make(map[string]*song.Song),
		config:      config,
		rng:         rand.IntN,
	}, nil
}

// GetCandidates retrieves continuation candidates using hybrid scoring.
func (p *LastFmProvider) GetCandidates(ctx context.Context, count int, seed song.Song, existingIDs map[string]bool) ([]song.Song, error) {
	if count <= 0 {
		return []song.Song{}, nil
	}
	var scored []scoredSong
	artist := seed.PrimaryArtist()
	if seed.Name == "" || artist == "" {
		charted, err := p.getChartBasedCandidates(ctx, existingIDs)
		if err != nil {
			return nil, err
		}
		scored = p.scoreAndMerge(nil, charted, seed.ID)
	} else {
		similar, similarErr := p.getSimilarBasedCandidates(ctx, seed.Name, artist, existingIDs)
		tagged := p.getTagBasedCandidates(ctx, seed.Name, artist, existingIDs)
		if similarErr != nil && len(tagged) == 0 {
			return nil, similarErr
		}
		scored = p.scoreAndMerge(tagged, similar, seed.ID)
	}
	if len(scored) == 0 {
		return []song.Song{}, nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	// Pick randomly from the top count*2 to add variety.
	poolSize := min(count*2, len(scored))
	pool := scored[:poolSize]
	for i := len(pool) - 1; i > 0; i-- {
		j := p.rng(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}

	result := make([]song.Song, 0, count)
	for i := 0; i < count && i < len(pool); i++ {
		result = append(result, pool[i].Song)
	}
	return result, nil
}

// Name returns the provider name.
func (p *LastFmProvider) Name() string {
	return "lastfm"
}

// getSimilarBasedCandidates maps track.getSimilar results to catalog songs.
func (p *LastFmProvider) getSimilarBasedCandidates(ctx context.Context, name, artist string, existingIDs map[string]bool) ([]song.Song, error) {
	similar, err := p.lastfm.GetSimilarTracks(ctx, name, artist, p.config.SimilarLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get similar tracks")
	}

	pairs := make([][2]string, 0, len(similar))
	for _, s := range similar {
		pairs = append(pairs, [2]string{s.Name, s.Artist})
	}
	return p.lookupAll(ctx, pairs, existingIDs), nil
}

// getChartBasedCandidates is used when the seed cannot be looked up by
// name and artist.
func (p *LastFmProvider) getChartBasedCandidates(ctx context.Context, existingIDs map[string]bool) ([]song.Song, error) {
	tracks, err := p.lastfm.GetChartTopTracks(ctx, p.config.SimilarLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chart top tracks")
	}

	pairs := make([][2]string, 0, len(tracks))
	for _, t := range tracks {
		pairs = append(pairs, [2]string{t.Name, t.Artist})
	}
	return p.lookupAll(ctx, pairs, existingIDs), nil
}

// getTagBasedCandidates maps the top tracks of the seed's top tags to
// catalog songs.
func (p *LastFmProvider) getTagBasedCandidates(ctx context.Context, name, artist string, existingIDs map[string]bool) []song.Song {
	tags, err := p.lastfm.GetTopTags(ctx, name, artist, p.config.TagCount)
	if err != nil {
		zlog.Debug().Msgf("continuation: last.fm tags unavailable: track=%s error=%v", name, err)
		return nil
	}

	var pairs [][2]string
	for _, tag := range tags {
		tracks, err := p.lastfm.GetTopTracks(ctx, tag.Name, 10)
		if err != nil {
			continue
		}
		for _, t := range tracks {
			pairs = append(pairs, [2]string{t.Name, t.Artist})
		}
	}
	return p.lookupAll(ctx, pairs, existingIDs)
}

// lookupAll resolves (name, artist) pairs in the catalog in parallel,
// dropping misses and queued songs while keeping input order.
func (p *LastFmProvider) lookupAll(ctx context.Context, pairs [][2]string, existingIDs map[string]bool) []song.Song {
	found := make([]*song.Song, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Parallelism)
	for i, pair := range pairs {
		g.Go(func() error {
			found[i] = p.searchInCatalog(gctx, pair[0], pair[1])
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	result := make([]song.Song, 0, len(pairs))
	for _, s := range found {
		if s == nil || existingIDs[s.ID] || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		result = append(result, *s)
	}
	return result
}

// scoreAndMerge scores and merges tag-based and similar-based candidates.
func (p *LastFmProvider) scoreAndMerge(tagCandidates, similarCandidates []song.Song, seedID string) []scoredSong {
	scoreMap := make(map[string]*scoredSong)
	order := make([]string, 0)

	add := func(s song.Song, weight float64) {
		if s.ID == seedID {
			return
		}
		if existing, ok := scoreMap[s.ID]; ok {
			// found by both strategies
			existing.Score += weight
			return
		}
		scoreMap[s.ID] = &scoredSong{Song: s, Score: weight}
		order = append(order, s.ID)
	}

	for _, s := range similarCandidates {
		add(s, p.config.SimilarWeight)
	}
	for _, s := range tagCandidates {
		add(s, p.config.TagWeight)
	}

	result := make([]scoredSong, 0, len(order))
	for _, id := range order {
		result = append(result, *scoreMap[id])
	}
	return result
}

// searchInCatalog finds the catalog song for a Last.fm track, with caching.
func (p *LastFmProvider) searchInCatalog(ctx context.Context, name, artist string) *song.Song {
	key := strings.ToLower(name + ":" + artist)

	p.cacheMutex.RLock()
	if cached, ok := p.searchCache[key]; ok {
		p.cacheMutex.RUnlock()
		return cached
	}
	p.cacheMutex.RUnlock()

	var hit *song.Song
	results, err := p.catalog.SearchSongs(ctx, name+" "+artist)
	if err == nil && len(results) > 0 {
		s := results[0]
		hit = &s
	}
	if err != nil && ctx.Err() != nil {
		// do not cache cancellations
		return nil
	}

	p.cacheMutex.Lock()
	p.searchCache[key] = hit
	p.cacheMutex.Unlock()
	return hit
}
