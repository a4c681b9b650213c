package resolver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/directory-cli/internal/cache"
	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/resilience"
	"github.com/sells-group/directory-cli/pkg/clearbit"
	"github.com/sells-group/directory-cli/pkg/ddg"
)

// CachedSuggester consults a cache before calling the suggestion provider.
// Successful lookups are cached (a lookup with no result as an explicit
// miss); provider errors are not, so they are retried on the next run.
type CachedSuggester struct {
	inner   clearbit.Client
	cache   cache.Cache
	breaker *resilience.Breaker
}

// NewCachedSuggester wraps inner with c. breaker may be nil.
func NewCachedSuggester(inner clearbit.Client, c cache.Cache, breaker *resilience.Breaker) *CachedSuggester {
	return &CachedSuggester{inner: inner, cache: c, breaker: breaker}
}

// Suggest returns the best suggestion for name, or nil when the provider
// has none.
func (s *CachedSuggester) Suggest(ctx context.Context, name string) (*clearbit.Suggestion, error) {
	key := cache.Key(name)
	if key == "" {
		return nil, nil
	}

	if e, ok := s.cache.Get(ctx, key); ok {
		if e.Empty() {
			return nil, nil
		}
		var sug clearbit.Suggestion
		if err := json.Unmarshal(e.Value, &sug); err == nil {
			return &sug, nil
		}
		zap.L().Warn("resolver: undecodable cache entry, refetching", zap.String("key", key))
	}

	call := func(ctx context.Context) ([]clearbit.Suggestion, error) {
		return s.inner.Suggest(ctx, name)
	}
	var (
		list []clearbit.Suggestion
		err  error
	)
	if s.breaker != nil {
		list, err = resilience.Guard(ctx, s.breaker, call)
	} else {
		list, err = call(ctx)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "resolver: suggest %q", name)
	}

	entry := cache.Miss()
	var best *clearbit.Suggestion
	if len(list) > 0 {
		best = &list[0]
		raw, mErr := json.Marshal(best)
		if mErr != nil {
			return nil, eris.Wrap(mErr, "resolver: marshal suggestion")
		}
		entry = cache.Entry{Value: raw}
	}
	if err := s.cache.Put(ctx, key, entry); err != nil {
		zap.L().Warn("resolver: cache write failed", zap.String("key", key), zap.Error(err))
	}
	return best, nil
}

// SuggestDomain accepts the provider's suggested domain when the gate
// recognizes the record in the suggestion.
type SuggestDomain struct {
	Suggester *CachedSuggester
}

// Name returns the strategy name.
func (SuggestDomain) Name() string { return "clearbit_suggest" }

// Attempt looks up the record name.
func (sd SuggestDomain) Attempt(ctx context.Context, s Subject) (Outcome, error) {
	sug, err := sd.Suggester.Suggest(ctx, s.Record.Name)
	if err != nil {
		return Reject, err
	}
	if sug == nil || strings.TrimSpace(sug.Domain) == "" {
		return Reject, nil
	}
	return gateDomain(s.Record, sug.Name, sug.Domain), nil
}

// SearchDomain accepts the first non-aggregator search result whose domain
// label matches the record.
type SearchDomain struct {
	Client ddg.Client
}

// Name returns the strategy name.
func (SearchDomain) Name() string { return "ddg_search" }

// Attempt searches for the record name.
func (sd SearchDomain) Attempt(ctx context.Context, s Subject) (Outcome, error) {
	host, err := sd.Client.FindDomain(ctx, s.Record.Name)
	if err != nil {
		return Reject, err
	}
	if host == "" {
		return Reject, nil
	}
	return gateDomain(s.Record, "", host), nil
}

func gateDomain(r company.Record, suggestedName, domain string) Outcome {
	domain = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "/"))
	c := Gate(Identities(r), suggestedName, domain)
	if c == ConfidenceNone {
		zap.L().Debug("resolver: domain rejected by confidence gate",
			zap.String("company", r.Name),
			zap.String("suggested_name", suggestedName),
			zap.String("domain", domain),
		)
		return Reject
	}
	return Accept("https://"+domain, c)
}

// DomainResolver resolves the website field.
type DomainResolver struct {
	chain *Chain
}

// NewDomainResolver builds the website chain from strategies, usually
// SuggestDomain optionally followed by SearchDomain.
func NewDomainResolver(strategies ...Strategy) *DomainResolver {
	return &DomainResolver{chain: NewChain("website", strategies...)}
}

// Resolve resolves r's website.
func (d *DomainResolver) Resolve(ctx context.Context, r company.Record) Resolution {
	return d.chain.Resolve(ctx, Subject{Record: r})
}
