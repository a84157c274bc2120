// Package speaker provides output devices for the playback engine.
package speaker

import (
	"bytes"
	"context"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/vibestream/internal/app/playback"
)

// Config represents output device configuration.
type Config struct {
	HTTPClient   *http.Client  // used for remote sources
	TickInterval time.Duration // period of position updates
	// Length of every song on the simulated device. Zero means songs
	// never end on their own.
	SimulatedLength time.Duration
}

func (c Config) withDefaults() Config {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	return c
}

// events is a non-blocking device event queue.
type events chan playback.DeviceEvent

func newEvents() events {
	return make(events, 64)
}

func (e events) emit(ev playback.DeviceEvent) {
	select {
	case e <- ev:
	default:
		zlog.Warn().Msgf("speaker: event channel full, dropping event: type=%s token=%d", ev.Type, ev.Token)
	}
}

// fetchSource downloads a remote source into memory.
func fetchSource(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch source")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("failed to fetch source: %s", resp.Status)
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, errors.Wrap(err, "failed to read source")
	}
	return buf.Bytes(), nil
}

func clampLevel(level float64) float64 {
	if level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}

// levelToVolume converts a 0..1 level to a base-2 gain exponent.
// 1.0 maps to 0, 0.5 to -1, 0 to -10.
func levelToVolume(level float64) float64 {
	if level <= 0 {
		return -10
	}
	if level >= 1 {
		return 0
	}
	return math.Log2(level)
}
