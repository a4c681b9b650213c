package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/pkg/webmeta"
)

// fakeFetcher implements webmeta.Fetcher for testing.
type fakeFetcher struct {
	meta  *webmeta.Meta
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context, string) (*webmeta.Meta, error) {
	f.calls++
	return f.meta, f.err
}

func TestDescriptionResolver_MetaDescription(t *testing.T) {
	f := &fakeFetcher{meta: &webmeta.Meta{Title: "Acme Rockets Home", Description: "Acme builds reusable rockets."}}
	d := NewDescriptionResolver(f, 10, "")

	res := d.Resolve(context.Background(), acme())

	assert.Equal(t, "Acme builds reusable rockets.", res.Value)
	assert.Equal(t, "meta_description", res.Strategy)
	assert.Equal(t, 1, f.calls)
}

func TestDescriptionResolver_TitleWhenDescriptionShort(t *testing.T) {
	f := &fakeFetcher{meta: &webmeta.Meta{Title: "Reusable rockets", Description: "Rockets"}}
	res := NewDescriptionResolver(f, 10, "").Resolve(context.Background(), acme())

	assert.Equal(t, "Acme — Reusable rockets", res.Value)
	assert.Equal(t, ConfidenceFuzzy, res.Confidence)
}

func TestDescriptionResolver_TemplateOnFetchFailure(t *testing.T) {
	f := &fakeFetcher{err: errors.New("i/o timeout")}
	res := NewDescriptionResolver(f, 10, "").Resolve(context.Background(), acme())

	assert.Equal(t, "Acme is a SaaS or AI company offering innovative technology solutions.", res.Value)
	assert.Equal(t, "template", res.Strategy)
}

func TestDescriptionResolver_CustomTemplateNoWebsite(t *testing.T) {
	f := &fakeFetcher{}
	r := company.Record{Name: "Ghost"}
	res := NewDescriptionResolver(f, 10, "About {name}.").Resolve(context.Background(), r)

	assert.Equal(t, "About Ghost.", res.Value)
	assert.Equal(t, 0, f.calls)
}

func TestMetaDescription_LengthIsExclusive(t *testing.T) {
	s := Subject{Meta: &webmeta.Meta{Description: "0123456789"}}
	out, err := MetaDescription{MinLength: 10}.Attempt(context.Background(), s)
	assert.NoError(t, err)
	assert.False(t, out.Accepted)

	s.Meta.Description = "0123456789a"
	out, _ = MetaDescription{MinLength: 10}.Attempt(context.Background(), s)
	assert.True(t, out.Accepted)
}
