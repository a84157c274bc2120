// Package catalog provides a client for the music catalog REST API.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/vibestream/internal/domain/song"
)

// DefaultBaseURL is the public catalog endpoint.
const DefaultBaseURL = "https://musicapi-gray.vercel.app/api"

// ErrNotFound is returned when the catalog has no entry for an ID.
var ErrNotFound = errors.New("not found in catalog")

// Config represents catalog client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is a catalog API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Album is an album search result or detail.
type Album struct {
	ID          string
	Name        string
	Description string
	Year        string
	Language    string
	Images      []song.Image
	Artists     []song.ArtistRef
	Songs       []song.Song
}

// Artist is an artist search result.
type Artist struct {
	ID     string
	Name   string
	Images []song.Image
}

// New creates a new catalog client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// SearchSongs searches songs by free text.
func (c *Client) SearchSongs(ctx context.Context, query string) ([]song.Song, error) {
	var resp struct {
		Data struct {
			Results []apiSong `json:"results"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/search/songs", url.Values{"query": {query}}, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to search songs: query=%s", query)
	}
	songs := make([]song.Song, 0, len(resp.Data.Results))
	for _, s := range resp.Data.Results {
		songs = append(songs, s.toDomain())
	}
	return songs, nil
}

// SearchAlbums searches albums by free text.
func (c *Client) SearchAlbums(ctx context.Context, query string) ([]Album, error) {
	var resp struct {
		Data struct {
			Results []apiAlbum `json:"results"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/search/albums", url.Values{"query": {query}}, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to search albums: query=%s", query)
	}
	albums := make([]Album, 0, len(resp.Data.Results))
	for _, a := range resp.Data.Results {
		albums = append(albums, a.toDomain())
	}
	return albums, nil
}

// SearchArtists searches artists by free text.
func (c *Client) SearchArtists(ctx context.Context, query string) ([]Artist, error) {
	var resp struct {
		Data struct {
			Results []struct {
				ID     string       `json:"id"`
				Name   string       `json:"name"`
				Images []song.Image `json:"image"`
			} `json:"results"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/search/artists", url.Values{"query": {query}}, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to search artists: query=%s", query)
	}
	artists := make([]Artist, 0, len(resp.Data.Results))
	for _, a := range resp.Data.Results {
		artists = append(artists, Artist{ID: a.ID, Name: a.Name, Images: a.Images})
	}
	return artists, nil
}

// GetAlbumDetails returns an album with its songs.
func (c *Client) GetAlbumDetails(ctx context.Context, id string) (*Album, error) {
	var resp struct {
		Data *apiAlbum `json:"data"`
	}
	if err := c.get(ctx, "/albums", url.Values{"id": {id}}, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to get album: id=%s", id)
	}
	if resp.Data == nil {
		return nil, errors.Mark(errors.Newf("album %s", id), ErrNotFound)
	}
	album := resp.Data.toDomain()
	return &album, nil
}

// GetSong returns a single song by ID.
func (c *Client) GetSong(ctx context.Context, id string) (*song.Song, error) {
	var resp struct {
		Data []apiSong `json:"data"`
	}
	if err := c.get(ctx, "/songs", url.Values{"ids": {id}}, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to get song: id=%s", id)
	}
	if len(resp.Data) == 0 {
		return nil, errors.Mark(errors.Newf("song %s", id), ErrNotFound)
	}
	s := resp.Data[0].toDomain()
	return &s, nil
}

// StreamURLs fetches the renditions of a song whose search result carried
// no pre-resolved download URLs. The caller picks one by quality.
func (c *Client) StreamURLs(ctx context.Context, id string) ([]song.DownloadURL, error) {
	s, err := c.GetSong(ctx, id)
	if err != nil {
		return nil, err
	}
	urls := lo.Filter(s.DownloadURLs, func(d song.DownloadURL, _ int) bool { return d.URL != "" })
	if len(urls) == 0 {
		return nil, errors.Mark(errors.Newf("no stream for song %s", id), ErrNotFound)
	}
	zlog.Debug().Msgf("catalog: stream renditions fetched: song_id=%s count=%d", id, len(urls))
	return urls, nil
}

// get performs a GET request and decodes the JSON body into v.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, v any) error {
	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("catalog API error: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

// seconds accepts a duration in seconds encoded as a JSON number or string.
type seconds float64

func (s *seconds) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if raw == "" || raw == "null" {
		*s = 0
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return errors.Newf("invalid duration %q", raw)
	}
	*s = seconds(f)
	return nil
}

type apiSong struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Album        song.AlbumRef      `json:"album"`
	Year         string             `json:"year"`
	Duration     seconds            `json:"duration"`
	Language     string             `json:"language"`
	Genre        string             `json:"genre"`
	Images       []song.Image       `json:"image"`
	Artists      song.Artists       `json:"artists"`
	DownloadURLs []song.DownloadURL `json:"downloadUrl"`
}

func (a apiSong) toDomain() song.Song {
	return song.Song{
		ID:           a.ID,
		Name:         a.Name,
		Album:        a.Album,
		Year:         a.Year,
		Duration:     time.Duration(float64(a.Duration) * float64(time.Second)),
		Language:     a.Language,
		Genre:        a.Genre,
		Images:       a.Images,
		Artists:      a.Artists,
		DownloadURLs: a.DownloadURLs,
	}
}

type apiAlbum struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Year        any          `json:"year"`
	Language    string       `json:"language"`
	Images      []song.Image `json:"image"`
	Artists     struct {
		Primary []song.ArtistRef `json:"primary"`
	} `json:"artists"`
	Songs []apiSong `json:"songs"`
}

func (a apiAlbum) toDomain() Album {
	album := Album{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Language:    a.Language,
		Images:      a.Images,
		Artists:     a.Artists.Primary,
	}
	if a.Year != nil {
		album.Year = fmt.Sprint(a.Year)
	}
	for _, s := range a.Songs {
		album.Songs = append(album.Songs, s.toDomain())
	}
	return album
}
