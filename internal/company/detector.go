package company

import (
	"strings"

	"github.com/sells-group/directory-cli/internal/normalize"
)

// Detector classifies records as clean or dirty. A field is dirty when it
// is empty, when one of its markers matches, or (for slugs) when it no
// longer equals the slug of the record name.
type Detector struct {
	markers Markers
}

// NewDetector creates a Detector over markers.
func NewDetector(markers Markers) *Detector {
	return &Detector{markers: markers}
}

// Markers returns the marker set the detector applies.
func (d *Detector) Markers() Markers { return d.markers }

// DirtyFields returns the set of fields in r that need enrichment.
func (d *Detector) DirtyFields(r Record) FieldSet {
	var s FieldSet

	if strings.TrimSpace(r.Website) == "" || Match(r.Website, d.markers.Website) {
		s = s.Add(FieldWebsite)
	}
	if strings.TrimSpace(r.LogoURL) == "" || Match(r.LogoURL, d.markers.Logo) {
		s = s.Add(FieldLogo)
	}
	if strings.TrimSpace(r.Description) == "" || Match(r.Description, d.markers.Description) {
		s = s.Add(FieldDescription)
	}
	if want := normalize.Slug(r.Name); want != "" && r.Slug != want {
		s = s.Add(FieldSlug)
	}
	return s
}

// IsDirty reports whether any field of r needs enrichment.
func (d *Detector) IsDirty(r Record) bool {
	return !d.DirtyFields(r).Empty()
}

// FilterFields returns the records of rs dirty in at least one field of
// mask, preserving order. An empty mask matches any dirty field.
func (d *Detector) FilterFields(rs []Record, mask FieldSet) []Record {
	out := make([]Record, 0, len(rs))
	for _, r := range rs {
		keep := d.IsDirty(r)
		if !mask.Empty() {
			keep = !(d.DirtyFields(r) & mask).Empty()
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}
