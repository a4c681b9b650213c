package postgrest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/directory-cli/internal/resilience"
)

type row struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestSelect_BuildsQueryAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/companies", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "id,name", q.Get("select"))
		assert.Equal(t, `(description.ilike."*YC OSS JSON*",logo_url.ilike.*default-logo*,slug.is.null)`, q.Get("or"))
		assert.Equal(t, `not.in.(1,2)`, q.Get("id"))
		assert.Equal(t, "1000", q.Get("limit"))
		assert.Equal(t, "id.asc", q.Get("order"))

		_, _ = w.Write([]byte(`[{"id":1,"name":"Acme"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", WithHTTPClient(srv.Client()))
	var out []row
	err := c.Select(context.Background(), "companies", Query{
		Columns: []string{"id", "name"},
		Filters: []Filter{NotIn("id", []string{"1", "2"})},
		Or: []Condition{
			Ilike("description", "*YC OSS JSON*"),
			Ilike("logo_url", "*default-logo*"),
			IsNull("slug"),
		},
		Order: "id.asc",
		Limit: 1000,
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, []row{{ID: 1, Name: "Acme"}}, out)
}

func TestSelect_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"down"}`))
	}))
	defer srv.Close()

	var out []row
	err := NewClient(srv.URL, "k").Select(context.Background(), "companies", Query{}, &out)
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.True(t, resilience.IsTransient(err))
}

func TestUpsert_SendsPreferAndConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "website", r.URL.Query().Get("on_conflict"))
		assert.Equal(t, "resolution=merge-duplicates,return=minimal", r.Header.Get("Prefer"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var rows []row
		require.NoError(t, json.Unmarshal(body, &rows))
		assert.Len(t, rows, 2)

		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "k").Upsert(context.Background(), "companies",
		[]row{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}, "website", MergeDuplicates)
	assert.NoError(t, err)
}

func TestUpsert_IgnoreDuplicatesPrefer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "website", r.URL.Query().Get("on_conflict"))
		assert.Equal(t, "resolution=ignore-duplicates,return=minimal", r.Header.Get("Prefer"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "k").Upsert(context.Background(), "companies",
		[]row{{ID: 1, Name: "A"}}, "website", IgnoreDuplicates)
	assert.NoError(t, err)
}

func TestUpsert_DefaultsToMerge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "resolution=merge-duplicates,return=minimal", r.Header.Get("Prefer"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "k").Upsert(context.Background(), "companies", []row{{ID: 1}}, "id", "")
	assert.NoError(t, err)
}

func TestUpsert_PermanentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "k").Upsert(context.Background(), "companies", []row{{ID: 1}}, "id", MergeDuplicates)
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestQuery_EncodeDefaults(t *testing.T) {
	vals, err := url.ParseQuery(Query{}.Encode())
	require.NoError(t, err)
	assert.Equal(t, "*", vals.Get("select"))
	assert.Empty(t, vals.Get("limit"))
	assert.Empty(t, vals.Get("or"))
	assert.Empty(t, vals.Get("offset"))

	vals, err = url.ParseQuery(Query{Limit: 50, Offset: 100}.Encode())
	require.NoError(t, err)
	assert.Equal(t, "50", vals.Get("limit"))
	assert.Equal(t, "100", vals.Get("offset"))
}

func TestCondition_Quoting(t *testing.T) {
	assert.Equal(t, `description.eq.""`, Eq("description", "").String())
	assert.Equal(t, `name.eq."a,b"`, Eq("name", "a,b").String())
	assert.Equal(t, `name.eq."say \"hi\""`, Eq("name", `say "hi"`).String())
	assert.Equal(t, `logo_url.is.null`, IsNull("logo_url").String())
}
