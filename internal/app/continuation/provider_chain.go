package continuation

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/vibestream/internal/app/filter"
	"github.com/osa030/vibestream/internal/domain/song"
)

// CandidateWithSource represents a song candidate with its source provider info.
type CandidateWithSource struct {
	Song        song.Song
	DisplayName string
}

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// ProviderChain tries multiple providers in order until enough candidates are found.
type ProviderChain struct {
	providers []ProviderWithMetadata
	filters   *filter.Chain
}

// NewProviderChain creates a new provider chain. filters may be nil.
func NewProviderChain(providers []ProviderWithMetadata, filters *filter.Chain) *ProviderChain {
	if filters == nil {
		filters = filter.NewChain()
	}
	return &ProviderChain{
		providers: providers,
		filters:   filters,
	}
}

// GetCandidates collects up to count songs related to seed that are not in
// queue and pass the filter chain. Providers are tried in order; a failing
// provider is logged and skipped. An error is returned only when every
// provider failed.
func (c *ProviderChain) GetCandidates(ctx context.Context, count int, seed song.Song, queue []song.Song) ([]CandidateWithSource, error) {
	if count <= 0 || len(c.providers) == 0 {
		return []CandidateWithSource{}, nil
	}

	excludeIDs := lo.SliceToMap(queue, func(s song.Song) (string, bool) {
		return s.ID, true
	})
	excludeIDs[seed.ID] = true

	fc := filter.Context{
		Seed:  seed,
		Queue: append([]song.Song(nil), queue...),
	}

	var accepted []CandidateWithSource
	failures := 0

	for i, pm := range c.providers {
		if len(accepted) >= count {
			break
		}
		if err := ctx.Err(); err != nil {
			return accepted, errors.Wrap(err, "continuation canceled")
		}

		zlog.Debug().Msgf("continuation: trying provider: index=%d total=%d name=%s provider_type=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		candidates, err := pm.Provider.GetCandidates(ctx, count-len(accepted), seed, excludeIDs)
		if err != nil {
			failures++
			zlog.Warn().Msgf("continuation: provider failed, trying next: provider=%s error=%v", pm.DisplayName, err)
			continue
		}

		added := 0
		for _, s := range candidates {
			if len(accepted) >= count {
				break
			}
			if s.ID == "" || excludeIDs[s.ID] {
				continue
			}
			if result := c.filters.Execute(ctx, s, fc); !result.Accepted {
				continue
			}
			accepted = append(accepted, CandidateWithSource{Song: s, DisplayName: pm.DisplayName})
			excludeIDs[s.ID] = true
			// later candidates are checked against earlier picks
			fc.Queue = append(fc.Queue, s)
			added++
		}

		zlog.Info().Msgf("continuation: provider returned candidates: provider=%s returned=%d accepted=%d total_so_far=%d",
			pm.DisplayName, len(candidates), added, len(accepted))
	}

	if len(accepted) == 0 && failures == len(c.providers) {
		return nil, errors.New("all providers failed to return candidates")
	}
	return accepted, nil
}

// Songs returns the songs of candidates in order.
func Songs(candidates []CandidateWithSource) []song.Song {
	return lo.Map(candidates, func(c CandidateWithSource, _ int) song.Song {
		return c.Song
	})
}

// Name returns the chain name.
func (c *ProviderChain) Name() string {
	return "provider_chain"
}
