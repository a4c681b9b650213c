package resolver

import (
	"strings"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/normalize"
)

// Gate compares a record's identities against a suggested company. It
// returns ConfidenceExact when an identity matches the suggested name,
// ConfidenceFuzzy when one matches the domain label, and ConfidenceNone
// otherwise. All comparisons are on slugs.
func Gate(identities []string, suggestedName, domain string) Confidence {
	nameSlug := normalize.Slug(suggestedName)
	labelSlug := normalize.Slug(normalize.DomainLabel(domain))

	best := ConfidenceNone
	for _, id := range identities {
		s := normalize.Slug(id)
		if s == "" {
			continue
		}
		if s == nameSlug {
			return ConfidenceExact
		}
		if s == labelSlug {
			best = ConfidenceFuzzy
		}
	}
	return best
}

// Identities returns the strings a record can be recognized by: its name
// and the last path fragment of its current website, if any
// ("https://www.ycombinator.com/companies/acme" contributes "acme").
func Identities(r company.Record) []string {
	ids := []string{r.Name}
	w := strings.TrimSpace(r.Website)
	if w == "" {
		return ids
	}
	if seg := normalize.LastPathSegment(w); seg != "" {
		ids = append(ids, seg)
	}
	if strings.HasPrefix(w, company.MissingDomainScheme) {
		ids = append(ids, strings.TrimPrefix(w, company.MissingDomainScheme))
	}
	return ids
}
