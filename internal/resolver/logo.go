package resolver

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/normalize"
)

// Template placeholders substituted into provider URL templates.
const (
	DomainPlaceholder  = "{domain}"
	WebsitePlaceholder = "{website}"
)

// LogoTemplates holds the provider URL templates of the logo chain.
type LogoTemplates struct {
	CDN          string
	Favicon      string
	FaviconByURL string
	Default      string
}

// DefaultLogoTemplates returns the public provider endpoints.
func DefaultLogoTemplates() LogoTemplates {
	return LogoTemplates{
		CDN:          "https://logo.clearbit.com/{domain}",
		Favicon:      "https://icons.duckduckgo.com/ip3/{domain}.ico",
		FaviconByURL: "https://t2.gstatic.com/faviconV2?client=SOCIAL&type=FAVICON&url={website}&size=128",
		Default:      company.DefaultLogoURL,
	}
}

func expandDomain(tmpl, domain string) string {
	return strings.ReplaceAll(tmpl, DomainPlaceholder, domain)
}

// recordDomain returns the registrable domain of an http(s) website.
func recordDomain(r company.Record) (string, error) {
	if !normalize.IsHTTP(r.Website) {
		return "", eris.Errorf("resolver: no http website for %q", r.Name)
	}
	d := normalize.RegistrableDomain(r.Website)
	if d == "" {
		return "", eris.Errorf("resolver: no domain in %q", r.Website)
	}
	return d, nil
}

// LogoCDN accepts the logo CDN URL when it serves an image.
type LogoCDN struct {
	Template string
	Prober   Prober
}

// Name returns the strategy name.
func (LogoCDN) Name() string { return "logo_cdn" }

// Attempt probes the CDN for the record's domain.
func (l LogoCDN) Attempt(ctx context.Context, s Subject) (Outcome, error) {
	d, err := recordDomain(s.Record)
	if err != nil {
		return Reject, err
	}
	target := expandDomain(l.Template, d)
	res, err := l.Prober.Probe(ctx, target)
	if err != nil {
		return Reject, err
	}
	if !res.OK() || !strings.HasPrefix(strings.ToLower(res.ContentType), "image/") {
		return Reject, nil
	}
	return Accept(target, ConfidenceExact), nil
}

// Favicon accepts the favicon service URL when it answers 2xx.
type Favicon struct {
	Template string
	Prober   Prober
}

// Name returns the strategy name.
func (Favicon) Name() string { return "favicon" }

// Attempt probes the favicon service for the record's domain.
func (f Favicon) Attempt(ctx context.Context, s Subject) (Outcome, error) {
	d, err := recordDomain(s.Record)
	if err != nil {
		return Reject, err
	}
	target := expandDomain(f.Template, d)
	res, err := f.Prober.Probe(ctx, target)
	if err != nil {
		return Reject, err
	}
	if !res.OK() {
		return Reject, nil
	}
	return Accept(target, ConfidenceExact), nil
}

// FaviconByURL builds a favicon URL keyed by the full website without
// probing it.
type FaviconByURL struct {
	Template string
}

// Name returns the strategy name.
func (FaviconByURL) Name() string { return "favicon_by_url" }

// Attempt builds the URL for an http(s) website.
func (f FaviconByURL) Attempt(_ context.Context, s Subject) (Outcome, error) {
	if !normalize.IsHTTP(s.Record.Website) {
		return Reject, eris.Errorf("resolver: no http website for %q", s.Record.Name)
	}
	target := strings.ReplaceAll(f.Template, WebsitePlaceholder, url.QueryEscape(s.Record.Website))
	return Accept(target, ConfidenceFuzzy), nil
}

// DefaultLogo always accepts the configured default logo.
type DefaultLogo struct {
	URL string
}

// Name returns the strategy name.
func (DefaultLogo) Name() string { return "default_logo" }

// Attempt accepts unconditionally.
func (d DefaultLogo) Attempt(context.Context, Subject) (Outcome, error) {
	return Accept(d.URL, ConfidenceNone), nil
}

// LogoResolver resolves the logo_url field.
type LogoResolver struct {
	chain *Chain
}

// NewLogoResolver builds the standard logo chain over prober.
func NewLogoResolver(t LogoTemplates, prober Prober) *LogoResolver {
	var strategies []Strategy
	if t.CDN != "" {
		strategies = append(strategies, LogoCDN{Template: t.CDN, Prober: prober})
	}
	if t.Favicon != "" {
		strategies = append(strategies, Favicon{Template: t.Favicon, Prober: prober})
	}
	if t.FaviconByURL != "" {
		strategies = append(strategies, FaviconByURL{Template: t.FaviconByURL})
	}
	if t.Default != "" {
		strategies = append(strategies, DefaultLogo{URL: t.Default})
	}
	return &LogoResolver{chain: NewChain("logo_url", strategies...)}
}

// Resolve resolves r's logo.
func (l *LogoResolver) Resolve(ctx context.Context, r company.Record) Resolution {
	return l.chain.Resolve(ctx, Subject{Record: r})
}
