// Package clearbit provides a client for the Clearbit company autocomplete
// API, which maps a free-text company name to candidate domains.
package clearbit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/directory-cli/internal/resilience"
)

// Client defines the Clearbit autocomplete operations.
type Client interface {
	// Suggest returns the companies Clearbit associates with query, best
	// match first. An empty slice means no suggestion.
	Suggest(ctx context.Context, query string) ([]Suggestion, error)
}

// Suggestion is one autocomplete result.
type Suggestion struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Logo   string `json:"logo,omitempty"`
}

// Option configures the Clearbit client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new Clearbit autocomplete client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://autocomplete.clearbit.com",
		http:    &http.Client{Timeout: 6 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Suggest(ctx context.Context, query string) ([]Suggestion, error) {
	reqURL := c.baseURL + "/v1/companies/suggest?query=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "clearbit: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "clearbit: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "clearbit: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("clearbit: unexpected status %d", resp.StatusCode)
		return nil, resilience.ForStatus(err, resp.StatusCode)
	}

	var out []Suggestion
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "clearbit: decode response")
	}
	return out, nil
}
