package resolver

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/directory-cli/internal/resilience"
)

// ProbeResult is what a URL probe observed.
type ProbeResult struct {
	StatusCode  int
	ContentType string
}

// OK reports a 2xx status.
func (p ProbeResult) OK() bool { return p.StatusCode >= 200 && p.StatusCode <= 299 }

// Prober checks whether a URL answers.
type Prober interface {
	Probe(ctx context.Context, target string) (ProbeResult, error)
}

// HTTPProber issues HEAD requests, falling back to GET when a server
// rejects HEAD with 405. Requests are paced per host and guarded by a
// per-host circuit breaker; both are optional.
type HTTPProber struct {
	client   *http.Client
	limiter  *resilience.HostLimiter
	breakers *resilience.HostBreakers
}

// NewHTTPProber creates a prober with the given per-request timeout.
func NewHTTPProber(timeout time.Duration, limiter *resilience.HostLimiter, breakers *resilience.HostBreakers) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProber{
		client:   &http.Client{Timeout: timeout},
		limiter:  limiter,
		breakers: breakers,
	}
}

// Probe requests target and reports status and content type.
func (p *HTTPProber) Probe(ctx context.Context, target string) (ProbeResult, error) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return ProbeResult{}, eris.Errorf("resolver: invalid probe url %q", target)
	}
	if p.limiter != nil {
		if err := p.limiter.WaitURL(ctx, target); err != nil {
			return ProbeResult{}, eris.Wrap(err, "resolver: probe rate limit")
		}
	}
	if p.breakers == nil {
		return p.probe(ctx, target)
	}
	return resilience.Guard(ctx, p.breakers.For(u.Host), func(ctx context.Context) (ProbeResult, error) {
		return p.probe(ctx, target)
	})
}

func (p *HTTPProber) probe(ctx context.Context, target string) (ProbeResult, error) {
	res, err := p.do(ctx, http.MethodHead, target)
	if err != nil {
		return res, err
	}
	if res.StatusCode == http.StatusMethodNotAllowed {
		return p.do(ctx, http.MethodGet, target)
	}
	return res, nil
}

func (p *HTTPProber) do(ctx context.Context, method, target string) (ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return ProbeResult{}, eris.Wrap(err, "resolver: create probe request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return ProbeResult{}, eris.Wrapf(err, "resolver: probe %s", target)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()

	return ProbeResult{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
