// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// Cache for track tags
	trackTagCache map[string][]Tag
	// Cache for tag tracks
	tagTracksCache map[string][]TopTrack

	// Mutex for cache access
	cacheMu sync.RWMutex
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey  string
	BaseURL string // defaults to the public API endpoint
	Timeout time.Duration
}

// SimilarTrack represents a similar track from Last.fm.
type SimilarTrack struct {
	Name   string
	Artist string
	Match  float64 // similarity in [0,1]
}

// Tag represents a Last.fm tag.
type Tag struct {
	Name  string
	Count int // Tag count/frequency
}

// TopTrack represents a top track for a tag or chart.
type TopTrack struct {
	Name   string
	Artist string
}

type artistName struct {
	Name string `json:"name"`
}

// getSimilarResponse represents the response from track.getSimilar API.
type getSimilarResponse struct {
	SimilarTracks struct {
		Track []struct {
			Name   string          `json:"name"`
			Match  json.RawMessage `json:"match"`
			Artist artistName      `json:"artist"`
		} `json:"track"`
	} `json:"similartracks"`
}

// getTopTagsResponse represents the response from track.getTopTags API.
type getTopTagsResponse struct {
	TopTags struct {
		Tag []struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		} `json:"tag"`
	} `json:"toptags"`
}

// getTopTracksResponse represents the response from tag.getTopTracks and
// chart.getTopTracks.
type getTopTracksResponse struct {
	Tracks struct {
		Track []struct {
			Name   string     `json:"name"`
			Artist artistName `json:"artist"`
		} `json:"track"`
	} `json:"tracks"`
}

// apiError represents an error response from Last.fm API.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        cfg.BaseURL,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		trackTagCache:  make(map[string][]Tag),
		tagTracksCache: make(map[string][]TopTrack),
	}, nil
}

// GetSimilarTracks retrieves similar tracks from Last.fm based on track name and artist.
// Reference: https://www.last.fm/api/show/track.getSimilar
func (c *Client) GetSimilarTracks(ctx context.Context, trackName, artist string, limit int) ([]SimilarTrack, error) {
	if trackName == "" || artist == "" {
		return nil, errors.New("track name and artist name are required")
	}

	params := url.Values{}
	params.Set("method", "track.getSimilar")
	params.Set("artist", artist)
	params.Set("track", trackName)
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))
	params.Set("autocorrect", "1")

	var response getSimilarResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}

	similarTracks := make([]SimilarTrack, 0, len(response.SimilarTracks.Track))
	for _, t := range response.SimilarTracks.Track {
		similarTracks = append(similarTracks, SimilarTrack{
			Name:   t.Name,
			Artist: t.Artist.Name,
			Match:  parseMatch(t.Match),
		})
	}

	return similarTracks, nil
}

// GetTopTags retrieves top tags for a track from Last.fm.
// Reference: https://www.last.fm/api/show/track.getTopTags
func (c *Client) GetTopTags(ctx context.Context, trackName, artist string, limit int) ([]Tag, error) {
	if trackName == "" || artist == "" {
		return nil, errors.New("track name and artist name are required")
	}
	limit = clampLimit(limit, 10)

	cacheKey := fmt.Sprintf("%s:%s", artist, trackName)
	c.cacheMu.RLock()
	if tags, ok := c.trackTagCache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("lastfm: using cached tags: artist=%s track=%s", artist, trackName)
		return tags, nil
	}
	c.cacheMu.RUnlock()

	params := url.Values{}
	params.Set("method", "track.getTopTags")
	params.Set("artist", artist)
	params.Set("track", trackName)
	params.Set("autocorrect", "1")

	var response getTopTagsResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}

	tags := make([]Tag, 0, len(response.TopTags.Tag))
	for i, t := range response.TopTags.Tag {
		if i >= limit {
			break
		}
		tags = append(tags, Tag{
			Name:  t.Name,
			Count: t.Count,
		})
	}

	c.cacheMu.Lock()
	c.trackTagCache[cacheKey] = tags
	c.cacheMu.Unlock()

	return tags, nil
}

// GetTopTracks retrieves top tracks for a tag from Last.fm.
// Reference: https://www.last.fm/api/show/tag.getTopTracks
func (c *Client) GetTopTracks(ctx context.Context, tagName string, limit int) ([]TopTrack, error) {
	if tagName == "" {
		return nil, errors.New("tag name is required")
	}
	limit = clampLimit(limit, 20)

	cacheKey := fmt.Sprintf("%s:%d", tagName, limit)
	c.cacheMu.RLock()
	if tracks, ok := c.tagTracksCache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("lastfm: using cached top tracks: tag=%s", tagName)
		return tracks, nil
	}
	c.cacheMu.RUnlock()

	params := url.Values{}
	params.Set("method", "tag.getTopTracks")
	params.Set("tag", tagName)
	params.Set("limit", strconv.Itoa(limit))

	var response getTopTracksResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}
	tracks := toTopTracks(response)

	c.cacheMu.Lock()
	c.tagTracksCache[cacheKey] = tracks
	c.cacheMu.Unlock()

	return tracks, nil
}

// GetChartTopTracks retrieves global top tracks from Last.fm charts.
// Reference: https://www.last.fm/api/show/chart.getTopTracks
func (c *Client) GetChartTopTracks(ctx context.Context, limit int) ([]TopTrack, error) {
	params := url.Values{}
	params.Set("method", "chart.getTopTracks")
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))

	var response getTopTracksResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}
	return toTopTracks(response), nil
}

// call performs one API request and decodes the JSON body into v.
func (c *Client) call(ctx context.Context, params url.Values, v any) error {
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	// Last.fm reports errors in the body, sometimes with a 200 status.
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != 0 {
		return errors.Newf("last.fm API error %d: %s", apiErr.Error, apiErr.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("last.fm API error: %s", resp.Status)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func toTopTracks(response getTopTracksResponse) []TopTrack {
	tracks := make([]TopTrack, 0, len(response.Tracks.Track))
	for _, t := range response.Tracks.Track {
		tracks = append(tracks, TopTrack{
			Name:   t.Name,
			Artist: t.Artist.Name,
		})
	}
	return tracks
}

// parseMatch accepts the match score as number or string.
func parseMatch(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 100 {
		return 100
	}
	return limit
}
