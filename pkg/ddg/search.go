// Package ddg finds a company's official domain from DuckDuckGo's HTML
// search results.
package ddg

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Aggregators and directories that are never a company's own domain.
var domainBlocklist = []string{
	"linkedin.com",
	"crunchbase.com",
	"wikipedia.org",
	"ycombinator.com",
	"github.com",
	"twitter.com",
	"x.com",
	"facebook.com",
	"producthunt.com",
	"g2.com",
	"capterra.com",
	"glassdoor.com",
	"indeed.com",
	"builtin.com",
	"medium.com",
	"youtube.com",
}

// Client searches for a company domain.
type Client interface {
	// FindDomain returns the host of the first non-blocked result for
	// "<company> official website", or "" when nothing qualifies.
	FindDomain(ctx context.Context, company string) (string, error)
}

// Option configures the search client.
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

// NewClient creates a DuckDuckGo HTML search client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://duckduckgo.com",
		http:    &http.Client{Timeout: 12 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) FindDomain(ctx context.Context, company string) (string, error) {
	q := sanitizeCompany(company)
	if q == "" {
		return "", nil
	}

	u := c.baseURL + "/html/?q=" + url.QueryEscape(q+" official website")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", eris.Wrap(err, "ddg: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "ddg: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", eris.Errorf("ddg: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "ddg: parse html")
	}

	var best string
	// Results are <a class="result__a" href="...">.
	doc.Find("a.result__a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}

		host := hostFromURL(decodeRedirect(href))
		if host == "" || isBlockedDomain(host) {
			return true
		}
		best = host
		return false
	})
	return best, nil
}

// decodeRedirect unwraps /l/?uddg=<urlencoded> result links.
func decodeRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if uddg := u.Query().Get("uddg"); uddg != "" {
		return uddg
	}
	return href
}

func hostFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
}

func isBlockedDomain(host string) bool {
	for _, b := range domainBlocklist {
		if host == b || strings.HasSuffix(host, "."+b) {
			return true
		}
	}
	return false
}

func sanitizeCompany(s string) string {
	r := strings.NewReplacer(
		", Inc.", "", " Inc.", "", " Inc", "",
		", LLC", "", " LLC", "",
		", Ltd.", "", " Ltd.", "", " Ltd", "",
	)
	return strings.Join(strings.Fields(r.Replace(strings.TrimSpace(s))), " ")
}
