package continuation

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibestream/internal/app/filter"
	"github.com/osa030/vibestream/internal/infra/config"
)

// NewProviderChainFromConfig creates a provider chain from configuration.
// With no providers configured, a single catalog provider with default
// settings is used.
func NewProviderChainFromConfig(cfg *config.Config, catalog Catalog, filters *filter.Chain) (*ProviderChain, error) {
	pcfgs := cfg.Continuation.Providers
	if len(pcfgs) == 0 {
		pcfgs = []config.ProviderConfig{{Type: "catalog", DisplayName: "Catalog"}}
	}

	var providers []ProviderWithMetadata

	for i, pcfg := range pcfgs {
		var provider Provider
		var err error
		zlog.Debug().Msgf("continuation: creating provider: index=%d type=%s", i+1, pcfg.Type)
		switch pcfg.Type {
		case "catalog":
			provider, err = NewCatalogProvider(catalog, pcfg.Settings)

		case "lastfm":
			provider, err = NewLastFmProvider(catalog, pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: pcfg.DisplayName,
		})

		zlog.Info().Msgf("continuation: registered provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return NewProviderChain(providers, filters), nil
}
