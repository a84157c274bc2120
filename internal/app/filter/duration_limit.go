package filter

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibestream/internal/domain/song"
)

// DurationLimitConfig bounds candidate length. Zero disables a bound.
type DurationLimitConfig struct {
	MinSeconds int `yaml:"min_seconds" mapstructure:"min_seconds" validate:"gte=0"`
	MaxSeconds int `yaml:"max_seconds" mapstructure:"max_seconds" validate:"gte=0"`
	// MaxSeedRatio rejects candidates longer than this multiple of the seed,
	// which keeps hour-long mixes from following a single.
	MaxSeedRatio float64 `yaml:"max_seed_ratio" mapstructure:"max_seed_ratio" validate:"gte=0"`
}

// DurationLimitFilter rejects continuation candidates that are too short
// (interludes, previews) or too long for the seed. Songs whose catalog entry
// has no duration always pass.
type DurationLimitFilter struct {
	min, max time.Duration
	ratio    float64
}

// NewDurationLimitFilter creates a duration filter with no bounds.
func NewDurationLimitFilter() *DurationLimitFilter {
	return &DurationLimitFilter{}
}

func (f *DurationLimitFilter) Name() string {
	return "duration_limit_filter"
}

func (f *DurationLimitFilter) Description() string {
	return "Rejects candidates that are too short, too long, or much longer than the current song"
}

func (f *DurationLimitFilter) ReturnCodes() []string {
	return []string{"too_short", "too_long", "longer_than_seed"}
}

func (f *DurationLimitFilter) ValidateConfig(settings map[string]any) error {
	var config DurationLimitConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &config,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	if config.MaxSeconds > 0 && config.MinSeconds > config.MaxSeconds {
		return errors.Newf("min_seconds %d exceeds max_seconds %d", config.MinSeconds, config.MaxSeconds)
	}
	if config.MaxSeedRatio > 0 && config.MaxSeedRatio < 1 {
		return errors.Newf("max_seed_ratio %.2f would reject songs as long as the seed", config.MaxSeedRatio)
	}

	f.min = time.Duration(config.MinSeconds) * time.Second
	f.max = time.Duration(config.MaxSeconds) * time.Second
	f.ratio = config.MaxSeedRatio
	zlog.Debug().Msgf("filter: duration limits: min=%s max=%s seed_ratio=%.2f", f.min, f.max, f.ratio)
	return nil
}

func (f *DurationLimitFilter) Check(ctx context.Context, candidate song.Song, fc Context) Result {
	d := candidate.Duration
	if d <= 0 {
		return Accept()
	}
	switch {
	case f.min > 0 && d < f.min:
		return Reject("too_short")
	case f.max > 0 && d > f.max:
		return Reject("too_long")
	case f.ratio > 0 && fc.Seed.Duration > 0 && float64(d) > f.ratio*float64(fc.Seed.Duration):
		return Reject("longer_than_seed")
	}
	return Accept()
}

func init() {
	Register("duration_limit_filter", func() Filter {
		return NewDurationLimitFilter()
	})
}
