package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/directory-cli/internal/company"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "directory.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedRecords() []company.Record {
	return []company.Record{
		{Name: "Acme", Website: "https://acme.io", Description: "Acme builds rockets for the road.", LogoURL: "https://logo.clearbit.com/acme.io", Slug: "acme"},
		{Name: "Beta", Website: "missing-domain://beta", Description: "Beta ships beta software.", LogoURL: "https://logo.clearbit.com/beta.io", Slug: "beta"},
		{Name: "Gamma", Website: "https://gamma.dev", Description: "Gamma radiates.", LogoURL: company.DefaultLogoURL, Slug: "gamma"},
		{Name: "Delta", Website: "https://delta.ai", Description: "A startup from the YC W21 batch", LogoURL: "https://logo.clearbit.com/delta.ai", Slug: "delta"},
		{Name: "Epsilon", Website: "https://epsilon.io", Description: "Epsilon is small.", LogoURL: "https://logo.clearbit.com/epsilon.io", Slug: ""},
	}
}

func names(records []company.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}

func TestSQLite_NewRejectsBadTable(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "x.db"), "companies; drop")
	assert.Error(t, err)
}

func TestSQLite_UpsertAssignsIDsAndMergesOnWebsite(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	require.NoError(t, s.Upsert(ctx, seedRecords(), ConflictWebsite))

	all, err := s.List(ctx, ListQuery{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for _, r := range all {
		assert.NotEmpty(t, r.ID)
	}

	// Same website merges instead of inserting.
	require.NoError(t, s.Upsert(ctx, []company.Record{
		{Name: "Acme Corp", Website: "https://acme.io", Slug: "acme-corp"},
	}, ConflictWebsite))

	all, err = s.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, "Acme Corp", all[0].Name)
	assert.Equal(t, "acme-corp", all[0].Slug)
}

func TestSQLite_UpsertByID(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.Upsert(ctx, seedRecords()[:1], ConflictWebsite))

	all, err := s.List(ctx, ListQuery{})
	require.NoError(t, err)
	require.Len(t, all, 1)

	patched := all[0]
	patched.Website = "https://acme.com"
	require.NoError(t, s.Upsert(ctx, []company.Record{patched}, ConflictID))

	all, err = s.List(ctx, ListQuery{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, patched.ID, all[0].ID)
	assert.Equal(t, "https://acme.com", all[0].Website)

	err = s.Upsert(ctx, []company.Record{{Name: "NoID", Website: "https://x.io"}}, ConflictID)
	assert.Error(t, err)
}

func TestSQLite_UpsertUnsupportedKey(t *testing.T) {
	s := newTestSQLite(t)
	err := s.Upsert(context.Background(), seedRecords(), ConflictKey("slug"))
	assert.Error(t, err)
}

func TestSQLite_QueryDirty(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.Upsert(ctx, seedRecords(), ConflictWebsite))

	dirty, err := s.QueryDirty(ctx, DirtyQuery{Markers: company.DefaultMarkers()})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Beta", "Gamma", "Delta", "Epsilon"}, names(dirty))
}

func TestSQLite_QueryDirtyExcludeAndLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.Upsert(ctx, seedRecords(), ConflictWebsite))

	dirty, err := s.QueryDirty(ctx, DirtyQuery{Markers: company.DefaultMarkers()})
	require.NoError(t, err)
	require.NotEmpty(t, dirty)

	excluded, err := s.QueryDirty(ctx, DirtyQuery{
		Markers:    company.DefaultMarkers(),
		ExcludeIDs: []company.ID{dirty[0].ID},
	})
	require.NoError(t, err)
	assert.Len(t, excluded, len(dirty)-1)
	assert.NotContains(t, names(excluded), dirty[0].Name)

	limited, err := s.QueryDirty(ctx, DirtyQuery{Markers: company.DefaultMarkers(), Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLite_QueryDirtyEscapesLikeMetacharacters(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.Upsert(ctx, []company.Record{
		{Name: "Pct", Website: "https://pct.io", Description: "grew 100% last year", LogoURL: "https://l.io/p.png", Slug: "pct"},
		{Name: "Plain", Website: "https://plain.io", Description: "grew 100 last year", LogoURL: "https://l.io/q.png", Slug: "plain"},
	}, ConflictWebsite))

	dirty, err := s.QueryDirty(ctx, DirtyQuery{Markers: company.Markers{Description: []string{"100%"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Pct"}, names(dirty))
}

func TestSQLite_ListPaging(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.Upsert(ctx, seedRecords(), ConflictWebsite))

	page, err := s.List(ctx, ListQuery{Limit: 2, Offset: 3})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	page, err = s.List(ctx, ListQuery{Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSQLite_InsertNewWebsiteKeepsStoredRow(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.Upsert(ctx, seedRecords()[:1], ConflictWebsite))

	require.NoError(t, s.Upsert(ctx, []company.Record{
		{Name: "Acme", Website: "https://acme.io", LogoURL: company.DefaultLogoURL, Slug: "acme"},
		{Name: "Zeta", Website: "https://zeta.io", LogoURL: company.DefaultLogoURL, Slug: "zeta"},
	}, InsertNewWebsite))

	all, err := s.List(ctx, ListQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Acme builds rockets for the road.", all[0].Description)
	assert.Equal(t, "https://logo.clearbit.com/acme.io", all[0].LogoURL)
	assert.Equal(t, "Zeta", all[1].Name)
}

func TestSQLite_QueryDirtyRestrictedToFields(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.Upsert(ctx, seedRecords(), ConflictWebsite))

	tests := []struct {
		field company.Field
		want  []string
	}{
		{company.FieldWebsite, []string{"Beta"}},
		{company.FieldLogo, []string{"Gamma"}},
		{company.FieldDescription, []string{"Delta"}},
		{company.FieldSlug, []string{"Epsilon"}},
	}
	for _, tt := range tests {
		t.Run(tt.field.String(), func(t *testing.T) {
			dirty, err := s.QueryDirty(ctx, DirtyQuery{
				Markers: company.DefaultMarkers(),
				Fields:  company.FieldSet(0).Add(tt.field),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(dirty))
		})
	}
}
