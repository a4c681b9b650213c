package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/directory-cli/internal/cache"
	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/config"
	"github.com/sells-group/directory-cli/internal/reconcile"
	"github.com/sells-group/directory-cli/internal/resilience"
	"github.com/sells-group/directory-cli/internal/resolver"
	"github.com/sells-group/directory-cli/internal/store"
	"github.com/sells-group/directory-cli/internal/upsert"
	"github.com/sells-group/directory-cli/pkg/clearbit"
	"github.com/sells-group/directory-cli/pkg/ddg"
	"github.com/sells-group/directory-cli/pkg/postgrest"
	"github.com/sells-group/directory-cli/pkg/webmeta"
)

// directoryEnv holds the store and the rules shared by every command.
type directoryEnv struct {
	Store    store.Store
	Markers  company.Markers
	Detector *company.Detector
	Cache    cache.Cache // nil unless requested
}

// Close releases resources held by the environment.
func (e *directoryEnv) Close() {
	if e.Cache != nil {
		if err := e.Cache.Close(); err != nil {
			zap.L().Warn("close cache", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the config for mode, opens the store and loads the
// placeholder markers. withCache also opens the lookup cache. Callers
// should defer env.Close().
func initEnv(ctx context.Context, mode string, withCache bool) (*directoryEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	markers, err := company.LoadMarkers(cfg.Reconcile.MarkersFile)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	env := &directoryEnv{
		Store:    st,
		Markers:  markers,
		Detector: company.NewDetector(markers),
	}

	if withCache {
		c, err := initCache(ctx, cfg.Cache)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Cache = c
	}
	return env, nil
}

func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case config.DriverREST:
		client := postgrest.NewClient(sc.URL, sc.Key,
			postgrest.WithHTTPClient(&http.Client{Timeout: seconds(sc.TimeoutSecs)}))
		return store.NewREST(client, sc.Table), nil
	case config.DriverPostgres:
		return store.NewPostgres(ctx, sc.DatabaseURL, sc.Table, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	case config.DriverSQLite:
		return store.NewSQLite(sc.DatabaseURL, sc.Table)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

func initCache(ctx context.Context, cc config.CacheConfig) (cache.Cache, error) {
	switch cc.Driver {
	case "file":
		return cache.NewFileCache(cc.Path), nil
	case "sqlite":
		return cache.NewSQLiteCache(ctx, cc.Path)
	default:
		return nil, eris.Errorf("unsupported cache driver: %s", cc.Driver)
	}
}

// newWriter builds a batch writer sharing the configured retry policy.
func newWriter(st store.Store, batchSize int, pause time.Duration) *upsert.Writer {
	return upsert.NewWriter(st, upsert.Config{
		BatchSize:   batchSize,
		MaxAttempts: cfg.Upsert.MaxAttempts,
		BaseDelay:   cfg.Upsert.BaseDelay,
		Pause:       pause,
	}, nil)
}

// buildResolvers wires the three field chains. Outbound lookups share one
// per-host limiter and one set of per-host breakers.
func buildResolvers(c cache.Cache) reconcile.Resolvers {
	limiter := resilience.NewHostLimiter(cfg.Lookup.RequestsPerSecond, cfg.Lookup.Burst)
	breakers := resilience.NewHostBreakers(
		resilience.BreakerConfigFrom(cfg.Lookup.BreakerThreshold, cfg.Lookup.BreakerResetSecs))

	suggestClient := clearbit.NewClient(
		clearbit.WithBaseURL(cfg.Clearbit.BaseURL),
		clearbit.WithHTTPClient(&http.Client{Timeout: seconds(cfg.Clearbit.TimeoutSecs)}),
	)
	suggestBreaker := resilience.NewBreaker("clearbit",
		resilience.BreakerConfigFrom(cfg.Clearbit.FailureThreshold, cfg.Clearbit.ResetTimeoutSecs))
	suggester := resolver.NewCachedSuggester(suggestClient, c, suggestBreaker)

	domainStrategies := []resolver.Strategy{resolver.SuggestDomain{Suggester: suggester}}
	if cfg.Lookup.SearchFallback {
		search := ddg.NewClient(
			ddg.WithBaseURL(cfg.Lookup.SearchBaseURL),
			ddg.WithHTTPClient(&http.Client{Timeout: seconds(cfg.Clearbit.TimeoutSecs)}),
		)
		domainStrategies = append(domainStrategies, resolver.SearchDomain{Client: search})
		zap.L().Info("search fallback enabled for domain lookups")
	}

	prober := resolver.NewHTTPProber(seconds(cfg.Logo.ProbeTimeoutSecs), limiter, breakers)
	logos := resolver.NewLogoResolver(resolver.LogoTemplates{
		CDN:          cfg.Logo.CDN,
		Favicon:      cfg.Logo.Favicon,
		FaviconByURL: cfg.Logo.FaviconByURL,
		Default:      cfg.Logo.Default,
	}, prober)

	fetcher := webmeta.NewFetcher(
		webmeta.WithHTTPClient(&http.Client{Timeout: seconds(cfg.Description.FetchTimeoutSecs)}),
		webmeta.WithUserAgent(cfg.Description.UserAgent),
		webmeta.WithLimiter(limiter),
	)

	return reconcile.Resolvers{
		Domain:      resolver.NewDomainResolver(domainStrategies...),
		Logo:        logos,
		Description: resolver.NewDescriptionResolver(fetcher, cfg.Description.MinLength, cfg.Description.Template),
	}
}

// reconcileConfig maps the loaded settings onto the loop config.
func reconcileConfig(rc config.ReconcileConfig, fields company.FieldSet) reconcile.Config {
	return reconcile.Config{
		FetchLimit:        rc.FetchLimit,
		FallbackLimit:     rc.FallbackLimit,
		IdleSleep:         rc.IdleSleep,
		CycleSleep:        rc.CycleSleep,
		MaxRecordAttempts: rc.MaxRecordAttempts,
		MaxIdleCycles:     rc.MaxIdleCycles,
		MaxCycles:         rc.MaxCycles,
		Fields:            fields,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
