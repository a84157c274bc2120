package filter

import (
	"context"
	"slices"

	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/vibestream/internal/domain/song"
	"github.com/osa030/vibestream/internal/infra/config"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewChainFromConfig builds a chain from the registered filters enabled in
// cfg, in name order. Filters with invalid settings are logged and skipped.
func NewChainFromConfig(cfg *config.Config) *Chain {
	c := NewChain()

	names := lo.Keys(registry)
	slices.Sort(names)

	for _, name := range names {
		if !cfg.IsFilterEnabled(name) {
			continue
		}
		f := registry[name]()
		if err := f.ValidateConfig(cfg.FilterSettings(name)); err != nil {
			zlog.Error().Msgf("filter: invalid config, skipping: name=%s error=%v", name, err)
			continue
		}
		c.Add(f)
		zlog.Info().Msgf("filter: enabled: name=%s", name)
	}
	return c
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the candidate.
func (c *Chain) Execute(ctx context.Context, candidate song.Song, fc Context) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, candidate, fc)
		if !result.Accepted {
			zlog.Debug().Msgf("filter: candidate rejected: song_id=%s filter=%s code=%s", candidate.ID, f.Name(), result.Code)
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
