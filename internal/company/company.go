// Package company defines the directory record types and the pure rules
// applied to them: deduplication, placeholder detection and validation.
package company

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/directory-cli/internal/normalize"
)

// Placeholder values written for fields a source could not supply.
const (
	DefaultLogoURL      = "https://saaspertise.com/default-logo.png"
	MissingDomainScheme = "missing-domain://"
	YCCompanyPagePrefix = "https://www.ycombinator.com/companies/"
	DescriptionTemplate = "{name} is a SaaS or AI company offering innovative technology solutions."
)

// ID is a storage-assigned record identifier. REST backends return numeric
// ids while SQL backends may use UUIDs, so both JSON forms are accepted.
type ID string

// UnmarshalJSON accepts a JSON string, number or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Wrap(err, "company: decode id")
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return eris.Wrap(err, "company: decode id")
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits all-digit ids as JSON numbers so integer primary keys
// round-trip through REST backends.
func (id ID) MarshalJSON() ([]byte, error) {
	s := string(id)
	if s != "" && strings.Trim(s, "0123456789") == "" {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

// Record is one persisted directory entry.
type Record struct {
	ID          ID     `json:"id,omitempty" db:"id"`
	Name        string `json:"name" db:"name"`
	Website     string `json:"website" db:"website"`
	Category    string `json:"category" db:"category"`
	Description string `json:"description" db:"description"`
	LogoURL     string `json:"logo_url" db:"logo_url"`
	Slug        string `json:"slug" db:"slug"`
}

// Candidate is a raw record emitted by a source before deduplication.
type Candidate struct {
	Name        string `json:"name"`
	Website     string `json:"website"`
	Category    string `json:"category"`
	Description string `json:"description"`
	LogoURL     string `json:"logo_url,omitempty"`
	Source      string `json:"-"`
}

// Clean returns c with its text cleaned and its website normalized.
func (c Candidate) Clean() Candidate {
	c.Name = normalize.CleanText(c.Name)
	c.Description = normalize.CleanText(c.Description)
	c.Category = normalize.CleanText(c.Category)
	c.Website = normalize.URL(c.Website)
	c.LogoURL = strings.TrimSpace(c.LogoURL)
	return c
}

// Record converts a candidate into a new, unpersisted record. Empty
// websites get a unique missing-domain placeholder so the row satisfies the
// website conflict key, and empty logos get the default logo. Both are
// later picked up as placeholders by the reconcile loop.
func (c Candidate) Record() Record {
	slug := normalize.Slug(c.Name)
	r := Record{
		Name:        c.Name,
		Website:     c.Website,
		Category:    c.Category,
		Description: c.Description,
		LogoURL:     c.LogoURL,
		Slug:        slug,
	}
	if r.Website == "" {
		r.Website = MissingDomainScheme + slug
	}
	if r.LogoURL == "" {
		r.LogoURL = DefaultLogoURL
	}
	return r
}

// Field identifies one enrichable column of a Record.
type Field uint8

// Enrichable fields, in resolution order.
const (
	FieldWebsite Field = 1 << iota
	FieldLogo
	FieldDescription
	FieldSlug
)

// Fields lists every enrichable field in resolution order.
var Fields = []Field{FieldWebsite, FieldLogo, FieldDescription, FieldSlug}

func (f Field) String() string {
	switch f {
	case FieldWebsite:
		return "website"
	case FieldLogo:
		return "logo_url"
	case FieldDescription:
		return "description"
	case FieldSlug:
		return "slug"
	default:
		return "unknown"
	}
}

// FieldSet is a bitmask of Fields.
type FieldSet uint8

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool { return s&FieldSet(f) != 0 }

// Add returns the set with f included.
func (s FieldSet) Add(f Field) FieldSet { return s | FieldSet(f) }

// Empty reports whether no field is set.
func (s FieldSet) Empty() bool { return s == 0 }

// Names returns the column names of the fields in the set.
func (s FieldSet) Names() []string {
	var out []string
	for _, f := range Fields {
		if s.Has(f) {
			out = append(out, f.String())
		}
	}
	return out
}
