package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/store"
)

func newAuditStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "audit.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.Upsert(ctx, []company.Record{
		{Name: "Acme", Website: "https://acme.com", LogoURL: "https://acme.com/logo.png", Description: "Rockets for everyone.", Slug: "acme"},
		{Name: "Beta Labs", Website: "missing-domain://beta-labs", LogoURL: company.DefaultLogoURL, Description: "Beta tools.", Slug: "beta-labs"},
		{Name: "Gamma", Website: "https://gamma.io", LogoURL: "https://gamma.io/logo.png", Description: "A startup from the YC W21 batch", Slug: "old-gamma"},
		{Name: "Delta", Website: "https://delta.dev", LogoURL: company.DefaultLogoURL, Description: "Delta ships.", Slug: ""},
	}, store.ConflictWebsite))
	return st
}

func TestAuditStore(t *testing.T) {
	st := newAuditStore(t)

	report, err := auditStore(context.Background(), st, company.DefaultMarkers(), 2, 1)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Scanned)
	assert.Equal(t, 1, report.Clean)
	assert.Equal(t, 1, report.Issues[company.IssuePlaceholderSite])
	assert.Equal(t, 2, report.Issues[company.IssueDefaultLogo])
	assert.Equal(t, 1, report.Issues[company.IssuePlaceholderDescr])
	assert.Equal(t, 1, report.Issues[company.IssueStaleSlug])
	assert.Equal(t, 1, report.Issues[company.IssueMissingSlug])

	// Samples are capped per issue.
	assert.Len(t, report.Samples[company.IssueDefaultLogo], 1)
	assert.Equal(t, []string{"Gamma"}, report.Samples[company.IssueStaleSlug])
}

func TestAuditStore_DefaultPageSize(t *testing.T) {
	st := newAuditStore(t)

	report, err := auditStore(context.Background(), st, company.DefaultMarkers(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Scanned)
	assert.Empty(t, report.Samples)
}

func TestFormatAuditReport(t *testing.T) {
	report := &auditReport{
		Scanned: 10,
		Clean:   7,
		Issues: map[company.Issue]int{
			company.IssueStaleSlug:   2,
			company.IssueDefaultLogo: 1,
		},
		Samples: map[company.Issue][]string{
			company.IssueStaleSlug: {"Acme", "Beta"},
		},
	}

	var buf bytes.Buffer
	formatAuditReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "Scanned:")
	assert.Contains(t, out, "ISSUE")
	assert.Contains(t, out, "stale_slug")
	assert.Contains(t, out, "Acme, Beta")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("default_logo")), bytes.Index(buf.Bytes(), []byte("stale_slug")))
}

func TestFormatAuditReport_Clean(t *testing.T) {
	var buf bytes.Buffer
	formatAuditReport(&buf, &auditReport{Scanned: 3, Clean: 3, Issues: map[company.Issue]int{}})
	assert.NotContains(t, buf.String(), "ISSUE")
}
