package company

import (
	"strings"

	"github.com/sells-group/directory-cli/internal/normalize"
)

// Issue is a data-quality problem found on a persisted record.
type Issue string

// Known issues reported by Validate.
const (
	IssueMissingName      Issue = "missing_name"
	IssueInvalidWebsite   Issue = "invalid_website"
	IssuePlaceholderSite  Issue = "placeholder_website"
	IssuePlaceholderLogo  Issue = "placeholder_logo"
	IssueDefaultLogo      Issue = "default_logo"
	IssueMissingSlug      Issue = "missing_slug"
	IssueStaleSlug        Issue = "stale_slug"
	IssuePlaceholderDescr Issue = "placeholder_description"
)

// Validate returns every issue found on r, in a stable order.
func Validate(r Record, m Markers) []Issue {
	var issues []Issue

	if strings.TrimSpace(r.Name) == "" {
		issues = append(issues, IssueMissingName)
	}

	switch {
	case Match(r.Website, m.Website):
		issues = append(issues, IssuePlaceholderSite)
	case !normalize.IsHTTP(r.Website):
		issues = append(issues, IssueInvalidWebsite)
	}

	switch {
	case r.LogoURL == DefaultLogoURL:
		issues = append(issues, IssueDefaultLogo)
	case Match(r.LogoURL, m.Logo):
		issues = append(issues, IssuePlaceholderLogo)
	}

	if Match(r.Description, m.Description) {
		issues = append(issues, IssuePlaceholderDescr)
	}

	switch {
	case strings.TrimSpace(r.Slug) == "":
		issues = append(issues, IssueMissingSlug)
	case r.Slug != normalize.Slug(r.Name):
		issues = append(issues, IssueStaleSlug)
	}
	return issues
}
