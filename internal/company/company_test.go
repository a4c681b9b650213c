package company

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_UnmarshalNumberAndString(t *testing.T) {
	var rs []Record
	err := json.Unmarshal([]byte(`[{"id":42,"name":"A"},{"id":"b7c1","name":"B"},{"id":null,"name":"C"}]`), &rs)
	require.NoError(t, err)

	require.Len(t, rs, 3)
	assert.Equal(t, ID("42"), rs[0].ID)
	assert.Equal(t, ID("b7c1"), rs[1].ID)
	assert.Equal(t, ID(""), rs[2].ID)
}

func TestID_Marshal(t *testing.T) {
	b, err := json.Marshal(Record{ID: "42", Name: "A"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"id":42`)

	b, err = json.Marshal(Record{ID: "b7c1", Name: "B"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"id":"b7c1"`)

	b, err = json.Marshal(Record{Name: "C"})
	require.NoError(t, err)
	assert.NotContains(t, string(b), `"id"`)
}

func TestCandidate_CleanAndRecord(t *testing.T) {
	c := Candidate{
		Name:        "  <b>Acme</b>, Inc ",
		Website:     "acme.io/",
		Description: "Rockets\n\nand more",
	}.Clean()

	assert.Equal(t, "Acme , Inc", c.Name)
	assert.Equal(t, "https://acme.io", c.Website)
	assert.Equal(t, "Rockets and more", c.Description)

	r := c.Record()
	assert.Equal(t, "acme-inc", r.Slug)
	assert.Equal(t, DefaultLogoURL, r.LogoURL)
	assert.Equal(t, "https://acme.io", r.Website)
}

func TestCandidate_RecordMissingWebsite(t *testing.T) {
	r := Candidate{Name: "Ghost Co"}.Record()
	assert.Equal(t, "missing-domain://ghost-co", r.Website)
}

func TestFieldSet(t *testing.T) {
	var s FieldSet
	assert.True(t, s.Empty())

	s = s.Add(FieldLogo).Add(FieldWebsite)
	assert.True(t, s.Has(FieldLogo))
	assert.False(t, s.Has(FieldSlug))
	assert.Equal(t, []string{"website", "logo_url"}, s.Names())
}

func TestValidate(t *testing.T) {
	m := DefaultMarkers()

	assert.Empty(t, Validate(cleanRecord(), m))

	bad := Record{
		Website: "https://www.ycombinator.com/companies/x",
		LogoURL: DefaultLogoURL,
	}
	assert.Equal(t, []Issue{
		IssueMissingName,
		IssuePlaceholderSite,
		IssueDefaultLogo,
		IssueMissingSlug,
	}, Validate(bad, m))

	other := cleanRecord()
	other.Website = "acme.io"
	other.LogoURL = "https://www.ycombinator.com/logo.png"
	other.Slug = "old"
	assert.Equal(t, []Issue{
		IssueInvalidWebsite,
		IssuePlaceholderLogo,
		IssueStaleSlug,
	}, Validate(other, m))
}
