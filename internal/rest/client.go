// Package rest fetches prices from the upstream REST API through an ordered
// list of fallback strategies.
package rest

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pricefeed/pkg/exception"

	"github.com/yanun0323/errors"
)

const (
	DefaultBaseURL     = "https://api.polygon.io"
	DefaultTimeout     = 8 * time.Second
	maxResponseBodyLen = 1 << 20
)

// Config controls the REST client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Client performs authenticated GET requests against the upstream API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg.withDefaults(), httpClient: httpClient}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.APIKey != ""
}

// Get fetches path and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	if !c.Enabled() {
		return nil, exception.ErrMissingAPIKey
	}
	u, err := url.Parse(c.cfg.BaseURL + path)
	if err != nil {
		return nil, errors.Wrap(err, "parse url")
	}
	q := u.Query()
	q.Set("apiKey", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyLen))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("unexpected status: %s", resp.Status)
	}
	return body, nil
}
