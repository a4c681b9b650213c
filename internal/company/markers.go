package company

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Markers holds the substrings that flag a field value as placeholder
// content. A "*" inside a marker matches any run of characters, mirroring
// ILIKE wildcards so stores can push the same predicate server-side.
// Matching is case-insensitive.
type Markers struct {
	Description []string `yaml:"description"`
	Logo        []string `yaml:"logo_url"`
	Website     []string `yaml:"website"`
}

// DefaultMarkers returns the placeholder conventions of the seed datasets.
func DefaultMarkers() Markers {
	return Markers{
		Description: []string{
			"YC OSS JSON",
			"startup*YC",
			"entry*YC",
			"YC directory",
		},
		Logo: []string{
			"ycombinator.com",
			"default-logo",
		},
		Website: []string{
			MissingDomainScheme,
			"ycombinator.com/companies/",
		},
	}
}

// LoadMarkers reads a YAML marker file. Sections omitted from the file keep
// their defaults. An empty path returns the defaults.
func LoadMarkers(path string) (Markers, error) {
	m := DefaultMarkers()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Markers{}, eris.Wrapf(err, "company: read markers %s", path)
	}

	var override Markers
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Markers{}, eris.Wrapf(err, "company: parse markers %s", path)
	}

	if len(override.Description) > 0 {
		m.Description = override.Description
	}
	if len(override.Logo) > 0 {
		m.Logo = override.Logo
	}
	if len(override.Website) > 0 {
		m.Website = override.Website
	}
	return m, nil
}

// For returns the markers watched on field f.
func (m Markers) For(f Field) []string {
	switch f {
	case FieldDescription:
		return m.Description
	case FieldLogo:
		return m.Logo
	case FieldWebsite:
		return m.Website
	default:
		return nil
	}
}

// Match reports whether any marker in markers matches value.
func Match(value string, markers []string) bool {
	if value == "" {
		return false
	}
	v := strings.ToLower(value)
	for _, mk := range markers {
		if matchMarker(v, strings.ToLower(mk)) {
			return true
		}
	}
	return false
}

// matchMarker matches the "*"-separated parts of marker in order.
func matchMarker(value, marker string) bool {
	parts := strings.Split(marker, "*")
	matched := false
	for _, p := range parts {
		if p == "" {
			continue
		}
		i := strings.Index(value, p)
		if i < 0 {
			return false
		}
		value = value[i+len(p):]
		matched = true
	}
	return matched
}
