// Package ingest loads raw company candidates from tabular sources and
// writes the deduplicated set to the store as new records.
package ingest

import (
	"context"
	"iter"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/directory-cli/internal/company"
)

// Source yields raw candidates. Iteration stops at the first error.
type Source interface {
	Name() string
	Records(ctx context.Context) iter.Seq2[company.Candidate, error]
}

// headerAliases maps normalized header names to candidate fields.
var headerAliases = map[string]string{
	"name":         "name",
	"company":      "name",
	"company_name": "name",
	"website":      "website",
	"url":          "website",
	"homepage":     "website",
	"domain":       "website",
	"category":     "category",
	"industry":     "category",
	"description":  "description",
	"one_liner":    "description",
	"summary":      "description",
	"tagline":      "description",
	"logo_url":     "logo_url",
	"logo":         "logo_url",
}

// columns holds the index of each candidate field in a row; -1 if absent.
type columns struct {
	name, website, category, description, logo int
}

// mapHeader resolves header cells to candidate fields. The first matching
// column wins. A name column is required.
func mapHeader(header []string) (columns, error) {
	c := columns{name: -1, website: -1, category: -1, description: -1, logo: -1}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
		var slot *int
		switch headerAliases[key] {
		case "name":
			slot = &c.name
		case "website":
			slot = &c.website
		case "category":
			slot = &c.category
		case "description":
			slot = &c.description
		case "logo_url":
			slot = &c.logo
		default:
			continue
		}
		if *slot < 0 {
			*slot = i
		}
	}
	if c.name < 0 {
		return c, eris.Errorf("ingest: no name column in header %v", header)
	}
	return c, nil
}

func (c columns) candidate(row []string, source string) company.Candidate {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return row[i]
	}
	return company.Candidate{
		Name:        cell(c.name),
		Website:     cell(c.website),
		Category:    cell(c.category),
		Description: cell(c.description),
		LogoURL:     cell(c.logo),
		Source:      source,
	}
}

// NewFileSource picks a source implementation by file extension.
func NewFileSource(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		return NewCSVSource(path), nil
	case ".xlsx":
		return NewXLSXSource(path, ""), nil
	case ".json":
		return NewJSONSource(path), nil
	default:
		return nil, eris.Errorf("ingest: unsupported source format %q", path)
	}
}
