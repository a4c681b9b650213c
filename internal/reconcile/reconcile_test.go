package reconcile

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/normalize"
	"github.com/sells-group/directory-cli/internal/resilience"
	"github.com/sells-group/directory-cli/internal/resolver"
	"github.com/sells-group/directory-cli/internal/store"
	"github.com/sells-group/directory-cli/internal/upsert"
)

// memStore is an in-memory store that evaluates dirty queries with the
// detector.
type memStore struct {
	mu        sync.Mutex
	order     []company.ID
	rows      map[company.ID]company.Record
	failQuery bool
	failList  bool
	queries   []store.DirtyQuery
}

func newMemStore(recs ...company.Record) *memStore {
	s := &memStore{rows: make(map[company.ID]company.Record)}
	for _, r := range recs {
		s.order = append(s.order, r.ID)
		s.rows[r.ID] = r
	}
	return s
}

func (s *memStore) all() []company.Record {
	out := make([]company.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rows[id])
	}
	return out
}

func (s *memStore) get(id company.ID) company.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id]
}

func (s *memStore) QueryDirty(_ context.Context, q store.DirtyQuery) ([]company.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.failQuery {
		return nil, errors.New("query rejected")
	}
	skip := make(map[company.ID]bool)
	for _, id := range q.ExcludeIDs {
		skip[id] = true
	}
	var out []company.Record
	for _, r := range company.NewDetector(q.Markers).FilterFields(s.all(), q.Fields) {
		if skip[r.ID] {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) List(_ context.Context, q store.ListQuery) ([]company.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errors.New("list rejected")
	}
	all := s.all()
	if q.Offset >= len(all) {
		return nil, nil
	}
	all = all[q.Offset:]
	if q.Limit > 0 && len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, nil
}

func (s *memStore) Upsert(_ context.Context, recs []company.Record, key store.ConflictKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != store.ConflictID {
		return errors.New("unexpected conflict key")
	}
	for _, r := range recs {
		if _, ok := s.rows[r.ID]; !ok {
			s.order = append(s.order, r.ID)
		}
		s.rows[r.ID] = r
	}
	return nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

type resolveFunc func(company.Record) (string, bool)

func (f resolveFunc) Resolve(_ context.Context, r company.Record) resolver.Resolution {
	v, ok := f(r)
	if !ok {
		return resolver.Resolution{}
	}
	return resolver.Resolution{Resolved: true, Value: v, Confidence: resolver.ConfidenceExact, Strategy: "fake"}
}

func alwaysResolvers() Resolvers {
	return Resolvers{
		Domain: resolveFunc(func(r company.Record) (string, bool) {
			return "https://" + normalize.Slug(r.Name) + ".io", true
		}),
		Logo: resolveFunc(func(r company.Record) (string, bool) {
			return "https://logo.clearbit.com/" + normalize.Host(r.Website), true
		}),
		Description: resolveFunc(func(r company.Record) (string, bool) {
			return r.Name + " builds developer tooling.", true
		}),
	}
}

func newTestReconciler(st store.Store, res Resolvers, cfg Config, clk resilience.Clock) *Reconciler {
	w := upsert.NewWriter(st, upsert.Config{BatchSize: 100, BaseDelay: time.Second, Pause: time.Second}, clk)
	return New(st, company.NewDetector(company.DefaultMarkers()), res, w, cfg, clk)
}

func newClock() *resilience.InstantClock {
	return resilience.NewInstantClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
}

func dirtySeed() []company.Record {
	return []company.Record{
		{ID: "1", Name: "Acme", Website: "https://acme.io", Description: "Acme makes anvils for coyotes.", LogoURL: company.DefaultLogoURL, Slug: "acme"},
		{ID: "2", Name: "Beta Labs", Website: "missing-domain://beta-labs", Description: "", LogoURL: company.DefaultLogoURL, Slug: "beta-labs"},
		{ID: "3", Name: "Gamma AI", Website: "https://gamma.ai", Description: "A startup listed in the YC directory", LogoURL: "https://logo.clearbit.com/gamma.ai", Slug: "gamma"},
		{ID: "4", Name: "Delta", Website: "https://delta.dev", Description: "Delta ships databases.", LogoURL: "https://logo.clearbit.com/delta.dev", Slug: "delta"},
	}
}

func TestRun_TerminatesWithAlwaysSucceedingResolvers(t *testing.T) {
	st := newMemStore(dirtySeed()...)
	clk := newClock()
	r := newTestReconciler(st, alwaysResolvers(), DefaultConfig(), clk)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Cycles)
	assert.Equal(t, 3, sum.Fixed)
	assert.False(t, sum.Stalled)
	assert.Empty(t, sum.Quarantined)

	det := company.NewDetector(company.DefaultMarkers())
	for _, rec := range st.all() {
		assert.False(t, det.IsDirty(rec), "record %s still dirty: %+v", rec.ID, rec)
	}

	beta := st.get("2")
	assert.Equal(t, "https://beta-labs.io", beta.Website)
	assert.Equal(t, "https://logo.clearbit.com/beta-labs.io", beta.LogoURL)
	assert.Equal(t, "gamma-ai", st.get("3").Slug)

	// Untouched clean record.
	assert.Equal(t, dirtySeed()[3], st.get("4"))

	assert.Equal(t, []time.Duration{5 * time.Second}, clk.Sleeps())
	assert.Equal(t, 1, sum.Fields["website"])
	assert.Equal(t, 2, sum.Fields["logo_url"])
}

func TestRun_FixesDefaultLogoThroughLogoChain(t *testing.T) {
	st := newMemStore(company.Record{
		ID: "9", Name: "Acme", Website: "https://acme.io",
		Description: "Acme makes anvils for coyotes.", LogoURL: company.DefaultLogoURL, Slug: "acme",
	})

	prober := probeFunc(func(target string) (resolver.ProbeResult, error) {
		if strings.Contains(target, "logo.clearbit.com") {
			return resolver.ProbeResult{StatusCode: 404}, nil
		}
		return resolver.ProbeResult{StatusCode: 200, ContentType: "image/x-icon"}, nil
	})
	res := Resolvers{Logo: resolver.NewLogoResolver(resolver.DefaultLogoTemplates(), prober)}

	sum, err := newTestReconciler(st, res, DefaultConfig(), newClock()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Fixed)
	assert.Equal(t, "https://icons.duckduckgo.com/ip3/acme.io.ico", st.get("9").LogoURL)
	assert.Equal(t, 1, sum.Strategies["logo_url/favicon"])
}

type probeFunc func(string) (resolver.ProbeResult, error)

func (f probeFunc) Probe(_ context.Context, target string) (resolver.ProbeResult, error) {
	return f(target)
}

func stuckLogoRecord() company.Record {
	return company.Record{
		ID: "1", Name: "Acme", Website: "https://acme.io",
		Description: "Acme makes anvils for coyotes.", LogoURL: company.DefaultLogoURL, Slug: "acme",
	}
}

func TestRun_StallsWhenNothingCanBeFixed(t *testing.T) {
	st := newMemStore(stuckLogoRecord())
	res := Resolvers{Logo: resolveFunc(func(company.Record) (string, bool) {
		return company.DefaultLogoURL, true
	})}
	cfg := DefaultConfig()
	cfg.MaxRecordAttempts = 0
	clk := newClock()

	sum, err := newTestReconciler(st, res, cfg, clk).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.Stalled)
	assert.Equal(t, 3, sum.Cycles)
	assert.Equal(t, 0, sum.Fixed)
	assert.Equal(t, 3, sum.Skipped)
	assert.Empty(t, sum.Quarantined)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, clk.Sleeps())
}

func TestRun_QuarantineCountsAsProgress(t *testing.T) {
	st := newMemStore(stuckLogoRecord())
	clk := newClock()

	sum, err := newTestReconciler(st, Resolvers{}, DefaultConfig(), clk).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.Stalled)
	assert.Equal(t, 4, sum.Cycles)
	assert.Equal(t, 0, sum.Fixed)
	require.Len(t, sum.Quarantined, 1)
	assert.Equal(t, "1", sum.Quarantined[0].Key)
	assert.Equal(t, 3, sum.Quarantined[0].Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, clk.Sleeps())
}

func TestRun_DeadRecordsDoNotHideResolvableOnes(t *testing.T) {
	var seed []company.Record
	for i, name := range []string{"Dead One", "Dead Two", "Dead Three"} {
		seed = append(seed, company.Record{
			ID:          company.ID(strconv.Itoa(i + 1)),
			Name:        name,
			Website:     company.MissingDomainScheme + normalize.Slug(name),
			Description: name + " closed in 2019.",
			LogoURL:     "https://logo.clearbit.com/dead.io",
			Slug:        normalize.Slug(name),
		})
	}
	seed = append(seed, company.Record{
		ID: "9", Name: "Acme", Website: "missing-domain://acme",
		Description: "Acme makes anvils for coyotes.", LogoURL: "https://logo.clearbit.com/acme.io", Slug: "acme",
	})
	st := newMemStore(seed...)

	res := Resolvers{Domain: resolveFunc(func(r company.Record) (string, bool) {
		if strings.HasPrefix(r.Name, "Dead") {
			return "", false
		}
		return "https://acme.io", true
	})}
	cfg := DefaultConfig()
	cfg.FetchLimit = 3

	sum, err := newTestReconciler(st, res, cfg, newClock()).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.Stalled)
	assert.Equal(t, 1, sum.Fixed)
	assert.Equal(t, 5, sum.Cycles)
	assert.Len(t, sum.Quarantined, 3)
	assert.Equal(t, "https://acme.io", st.get("9").Website)
}

func TestRun_FieldsNarrowTheDirtySelection(t *testing.T) {
	logoOnly := func(id, name string) company.Record {
		host := normalize.Slug(name) + ".io"
		return company.Record{
			ID: company.ID(id), Name: name, Website: "https://" + host,
			Description: name + " ships software.", LogoURL: company.DefaultLogoURL, Slug: normalize.Slug(name),
		}
	}
	st := newMemStore(
		logoOnly("1", "Alpha"),
		logoOnly("2", "Bravo"),
		company.Record{
			ID: "3", Name: "Charlie", Website: "https://charlie.io",
			LogoURL: "https://logo.clearbit.com/charlie.io", Slug: "charlie",
		},
	)
	cfg := DefaultConfig()
	cfg.FetchLimit = 2
	cfg.Fields = company.FieldSet(0).Add(company.FieldDescription)

	for _, failQuery := range []bool{false, true} {
		st.failQuery = failQuery
		st.rows["3"] = company.Record{
			ID: "3", Name: "Charlie", Website: "https://charlie.io",
			LogoURL: "https://logo.clearbit.com/charlie.io", Slug: "charlie",
		}

		sum, err := newTestReconciler(st, alwaysResolvers(), cfg, newClock()).Run(context.Background())
		require.NoError(t, err)
		assert.False(t, sum.Stalled)
		assert.Equal(t, 1, sum.Fixed)
		assert.Equal(t, 2, sum.Cycles)
		assert.Empty(t, sum.Quarantined)
		assert.Equal(t, "Charlie builds developer tooling.", st.get("3").Description)
		assert.Equal(t, company.DefaultLogoURL, st.get("1").LogoURL)
	}
	assert.Equal(t, cfg.Fields, st.queries[0].Fields)
}

func TestRun_QuarantineEndsRunWithoutIdleGuard(t *testing.T) {
	st := newMemStore(stuckLogoRecord())
	cfg := DefaultConfig()
	cfg.MaxIdleCycles = 0

	sum, err := newTestReconciler(st, Resolvers{}, cfg, newClock()).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.Stalled)
	assert.Equal(t, 4, sum.Cycles)
	require.Len(t, sum.Quarantined, 1)

	last := st.queries[len(st.queries)-1]
	assert.Equal(t, []company.ID{"1"}, last.ExcludeIDs)
}

func TestRun_MaxCyclesCap(t *testing.T) {
	st := newMemStore(dirtySeed()...)
	cfg := DefaultConfig()
	cfg.MaxCycles = 1

	sum, err := newTestReconciler(st, Resolvers{}, cfg, newClock()).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.Capped)
	assert.Equal(t, 1, sum.Cycles)
}

func TestRun_FallsBackToListWhenQueryFails(t *testing.T) {
	st := newMemStore(dirtySeed()...)
	st.failQuery = true

	sum, err := newTestReconciler(st, alwaysResolvers(), DefaultConfig(), newClock()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Fixed)
	assert.Equal(t, 2, sum.Fallbacks)
}

func TestRun_BothQueriesFail(t *testing.T) {
	st := newMemStore(dirtySeed()...)
	st.failQuery = true
	st.failList = true

	_, err := newTestReconciler(st, alwaysResolvers(), DefaultConfig(), newClock()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback list")
}

func TestRun_CanceledContextReturnsPartialSummary(t *testing.T) {
	st := newMemStore(dirtySeed()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := newTestReconciler(st, alwaysResolvers(), DefaultConfig(), newClock()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, sum)
	assert.Equal(t, 0, sum.Cycles)
}

func TestEnrich_SkipsLogoAndDescriptionWithoutWebsite(t *testing.T) {
	st := newMemStore()
	res := alwaysResolvers()
	res.Domain = nil
	r := newTestReconciler(st, res, DefaultConfig(), newClock())

	rec := company.Record{ID: "1", Name: "Beta", Website: "missing-domain://beta", LogoURL: company.DefaultLogoURL, Slug: "old"}
	sum := &Summary{Fields: map[string]int{}, Strategies: map[string]int{}}
	patched, changed := r.enrich(context.Background(), rec, sum)

	assert.Equal(t, []string{"slug"}, changed.Names())
	assert.Equal(t, company.DefaultLogoURL, patched.LogoURL)
	assert.Equal(t, "beta", patched.Slug)
}

func TestEnrich_FieldRestriction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fields = company.FieldSet(0).Add(company.FieldSlug)
	r := newTestReconciler(newMemStore(), alwaysResolvers(), cfg, newClock())

	rec := dirtySeed()[1]
	rec.Slug = ""
	sum := &Summary{Fields: map[string]int{}, Strategies: map[string]int{}}
	patched, changed := r.enrich(context.Background(), rec, sum)

	assert.Equal(t, []string{"slug"}, changed.Names())
	assert.Equal(t, rec.Website, patched.Website)
}
