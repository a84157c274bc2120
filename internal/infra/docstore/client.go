// Package docstore provides a client for the remote JSON document store.
//
// Documents are whole JSON values addressed by name and written with
// last-write-wins semantics:
//
//	GET {base}/{name}  -> 200 with the document, or 404 when absent
//	PUT {base}/{name}  -> replaces the document
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Config represents document store client configuration.
type Config struct {
	BaseURL string
	Token   string // optional bearer token
	Timeout time.Duration
}

// Client is a remote document store client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	now        func() time.Time
}

// New creates a new document store client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("document store base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}, nil
}

// Read fetches the named document into v. It returns false when the document
// does not exist. Reads bypass caches so a fresh login sees the latest data.
func (c *Client) Read(ctx context.Context, name string, v any) (bool, error) {
	reqURL := c.documentURL(name) + "?t=" + strconv.FormatInt(c.now().UnixNano(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, errors.Wrapf(err, "failed to read document %s", name)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, errors.Newf("document store error reading %s: %s", name, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, errors.Wrap(err, "failed to read response body")
	}
	if len(bytes.TrimSpace(body)) == 0 || string(bytes.TrimSpace(body)) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return false, errors.Wrapf(err, "failed to parse document %s", name)
	}
	return true, nil
}

// Write replaces the named document with v.
func (c *Client) Write(ctx context.Context, name string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode document %s", name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.documentURL(name), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to write document %s", name)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Newf("document store error writing %s: %s", name, resp.Status)
	}
	zlog.Debug().Msgf("docstore: written: name=%s bytes=%d", name, len(body))
	return nil
}

func (c *Client) documentURL(name string) string {
	return c.baseURL + "/" + url.PathEscape(name)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
