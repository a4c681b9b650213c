// Package webmeta fetches a page and extracts its title and description
// from Open Graph and standard HTML meta tags.
package webmeta

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Meta is the metadata extracted from one page. Fields are empty when the
// page does not declare them.
type Meta struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Fetcher retrieves page metadata.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*Meta, error)
}

// Limiter paces outbound requests per host.
type Limiter interface {
	WaitURL(ctx context.Context, raw string) error
}

// Option configures the fetcher.
type Option func(*httpFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *httpFetcher) {
		f.http = hc
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *httpFetcher) {
		f.userAgent = ua
	}
}

// WithLimiter paces requests through l.
func WithLimiter(l Limiter) Option {
	return func(f *httpFetcher) {
		f.limiter = l
	}
}

// WithMaxBytes caps how much of the body is parsed.
func WithMaxBytes(n int64) Option {
	return func(f *httpFetcher) {
		f.maxBytes = n
	}
}

type httpFetcher struct {
	http      *http.Client
	userAgent string
	limiter   Limiter
	maxBytes  int64
}

// NewFetcher creates a metadata fetcher with an 8s timeout.
func NewFetcher(opts ...Option) Fetcher {
	f := &httpFetcher{
		http:      &http.Client{Timeout: 8 * time.Second},
		userAgent: "Mozilla/5.0",
		maxBytes:  2 << 20,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *httpFetcher) Fetch(ctx context.Context, pageURL string) (*Meta, error) {
	if f.limiter != nil {
		if err := f.limiter.WaitURL(ctx, pageURL); err != nil {
			return nil, eris.Wrap(err, "webmeta: rate limit")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "webmeta: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "webmeta: fetch %s", pageURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, eris.Errorf("webmeta: fetch %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, eris.Wrap(err, "webmeta: parse html")
	}
	return Extract(doc), nil
}

// Extract reads title and description from a parsed document, preferring
// Open Graph tags over the standard ones.
func Extract(doc *goquery.Document) *Meta {
	m := &Meta{
		Title:       metaContent(doc, `meta[property="og:title"]`),
		Description: metaContent(doc, `meta[property="og:description"]`),
	}
	if m.Title == "" {
		m.Title = clean(doc.Find("title").First().Text())
	}
	if m.Description == "" {
		m.Description = metaContent(doc, `meta[name="description"]`)
	}
	return m
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return clean(v)
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
