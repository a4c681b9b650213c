package normalize

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// URL normalizes a raw website into an absolute HTTPS URL without a trailing
// slash. Protocol-relative and scheme-less inputs are promoted to https.
// Non-http(s) schemes (such as placeholder schemes) are returned trimmed but
// otherwise untouched. Empty input yields "".
func URL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(s, "//"):
		s = "https:" + s
	case !strings.Contains(s, "://"):
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.TrimRight(s, "/")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return strings.TrimRight(s, "/")
	}
	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/")
}

// IsHTTP reports whether raw is an absolute http or https URL.
func IsHTTP(raw string) bool {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Host returns the lowercased host of raw without port or a leading "www.".
func Host(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + strings.TrimPrefix(s, "//")
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	h := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(h, "www.")
}

// RegistrableDomain returns the eTLD+1 of raw ("app.acme.co.uk" -> "acme.co.uk").
// Hosts without a registrable part (IPs, bare suffixes, localhost) fall back
// to the host itself.
func RegistrableDomain(raw string) string {
	h := Host(raw)
	if h == "" {
		return ""
	}
	if net.ParseIP(h) != nil {
		return h
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(h)
	if err != nil {
		return h
	}
	return d
}

// DomainLabel returns the registrable label of domain with the public suffix
// removed ("acme.co.uk" -> "acme").
func DomainLabel(domain string) string {
	d := RegistrableDomain(domain)
	if d == "" {
		return ""
	}
	suffix, _ := publicsuffix.PublicSuffix(d)
	if suffix == "" || suffix == d {
		return d
	}
	return strings.TrimSuffix(d, "."+suffix)
}

// LastPathSegment returns the final non-empty path segment of raw, or "".
func LastPathSegment(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return parts[len(parts)-1]
}

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// CleanText strips HTML tags, converts non-breaking spaces, and collapses
// runs of whitespace into single spaces.
func CleanText(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
