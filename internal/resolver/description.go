package resolver

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/pkg/webmeta"
)

// MetaDescription accepts the page's description when it is long enough.
type MetaDescription struct {
	MinLength int
}

// Name returns the strategy name.
func (MetaDescription) Name() string { return "meta_description" }

// Attempt reads s.Meta.
func (m MetaDescription) Attempt(_ context.Context, s Subject) (Outcome, error) {
	if s.Meta == nil || utf8.RuneCountInString(s.Meta.Description) <= m.MinLength {
		return Reject, nil
	}
	return Accept(s.Meta.Description, ConfidenceExact), nil
}

// TitleDescription joins the record name and a usable page title.
type TitleDescription struct {
	MinLength int
}

// Name returns the strategy name.
func (TitleDescription) Name() string { return "page_title" }

// Attempt reads s.Meta.
func (t TitleDescription) Attempt(_ context.Context, s Subject) (Outcome, error) {
	if s.Meta == nil || utf8.RuneCountInString(s.Meta.Title) <= t.MinLength {
		return Reject, nil
	}
	return Accept(s.Record.Name+" — "+s.Meta.Title, ConfidenceFuzzy), nil
}

// TemplateDescription fills a fixed sentence with the record name.
type TemplateDescription struct {
	Template string
}

// Name returns the strategy name.
func (TemplateDescription) Name() string { return "template" }

// Attempt accepts unconditionally.
func (t TemplateDescription) Attempt(_ context.Context, s Subject) (Outcome, error) {
	return Accept(strings.ReplaceAll(t.Template, "{name}", s.Record.Name), ConfidenceNone), nil
}

// DescriptionResolver resolves the description field. Page metadata is
// fetched once per record and shared by the chain; a failed fetch leaves
// it empty so the chain falls through to the template.
type DescriptionResolver struct {
	fetcher webmeta.Fetcher
	chain   *Chain
}

// NewDescriptionResolver builds the standard description chain.
func NewDescriptionResolver(fetcher webmeta.Fetcher, minLength int, template string) *DescriptionResolver {
	if template == "" {
		template = company.DescriptionTemplate
	}
	return &DescriptionResolver{
		fetcher: fetcher,
		chain: NewChain("description",
			MetaDescription{MinLength: minLength},
			TitleDescription{MinLength: minLength},
			TemplateDescription{Template: template},
		),
	}
}

// Resolve resolves r's description.
func (d *DescriptionResolver) Resolve(ctx context.Context, r company.Record) Resolution {
	meta := &webmeta.Meta{}
	if d.fetcher != nil && r.Website != "" {
		m, err := d.fetcher.Fetch(ctx, r.Website)
		if err != nil {
			zap.L().Debug("resolver: metadata fetch failed",
				zap.String("company", r.Name),
				zap.String("website", r.Website),
				zap.Error(err),
			)
		} else if m != nil {
			meta = m
		}
	}
	return d.chain.Resolve(ctx, Subject{Record: r, Meta: meta})
}
