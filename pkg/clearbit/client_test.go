package clearbit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/directory-cli/internal/resilience"
)

func TestSuggest_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/companies/suggest", r.URL.Path)
		assert.Equal(t, "Acme Inc", r.URL.Query().Get("query"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"Acme","domain":"acme.io","logo":"https://logo.clearbit.com/acme.io"}]`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	got, err := c.Suggest(context.Background(), "Acme Inc")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "Acme", got[0].Name)
	assert.Equal(t, "acme.io", got[0].Domain)
}

func TestSuggest_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	got, err := NewClient(WithBaseURL(srv.URL)).Suggest(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSuggest_TransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Suggest(context.Background(), "acme")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestSuggest_PermanentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Suggest(context.Background(), "acme")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestSuggest_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Suggest(context.Background(), "acme")
	assert.Error(t, err)
}
