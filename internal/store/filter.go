package store

import (
	"strings"

	"github.com/sells-group/directory-cli/internal/company"
)

// markerColumn pairs a watched column with its markers.
type markerColumn struct {
	column  string
	markers []string
}

// watchedColumns returns the columns q selects on, in field order. An
// empty field mask watches every column. Slugs carry no markers, so only
// their empty form is matched server-side.
func watchedColumns(q DirtyQuery) []markerColumn {
	all := []struct {
		field   company.Field
		markers []string
	}{
		{company.FieldWebsite, q.Markers.Website},
		{company.FieldLogo, q.Markers.Logo},
		{company.FieldDescription, q.Markers.Description},
		{company.FieldSlug, nil},
	}
	out := make([]markerColumn, 0, len(all))
	for _, c := range all {
		if !q.Fields.Empty() && !q.Fields.Has(c.field) {
			continue
		}
		out = append(out, markerColumn{column: c.field.String(), markers: c.markers})
	}
	return out
}

// likePattern converts a "*"-wildcard marker into a SQL LIKE pattern that
// matches the marker anywhere in the value. LIKE metacharacters in the
// marker are escaped with a backslash.
func likePattern(marker string) string {
	esc := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(marker)
	return "%" + strings.ReplaceAll(esc, "*", "%") + "%"
}

// likePatterns converts every marker with likePattern.
func likePatterns(markers []string) []string {
	out := make([]string, 0, len(markers))
	for _, m := range markers {
		if strings.Trim(m, "*") == "" {
			continue
		}
		out = append(out, likePattern(m))
	}
	return out
}

// ilikePattern converts a marker into a PostgREST ilike pattern.
func ilikePattern(marker string) string {
	return "*" + strings.Trim(marker, "*") + "*"
}

func idStrings(ids []company.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
