// Package reconcile runs the convergent enrichment loop: select dirty
// records, resolve their placeholder fields, write the patches back, and
// repeat until the store reports nothing left to fix.
package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/normalize"
	"github.com/sells-group/directory-cli/internal/resilience"
	"github.com/sells-group/directory-cli/internal/resolver"
	"github.com/sells-group/directory-cli/internal/store"
	"github.com/sells-group/directory-cli/internal/upsert"
)

// Config controls the loop pacing and liveness guard.
type Config struct {
	FetchLimit    int           `yaml:"fetch_limit" mapstructure:"fetch_limit"`
	FallbackLimit int           `yaml:"fallback_limit" mapstructure:"fallback_limit"`
	IdleSleep     time.Duration `yaml:"idle_sleep" mapstructure:"idle_sleep"`
	CycleSleep    time.Duration `yaml:"cycle_sleep" mapstructure:"cycle_sleep"`
	// MaxRecordAttempts quarantines a record after it was selected this many
	// times in one run. 0 disables quarantining.
	MaxRecordAttempts int `yaml:"max_record_attempts" mapstructure:"max_record_attempts"`
	// MaxIdleCycles ends the run after this many consecutive cycles that
	// neither fixed nor quarantined a record. 0 disables the check.
	MaxIdleCycles int `yaml:"max_idle_cycles" mapstructure:"max_idle_cycles"`
	// MaxCycles caps the number of cycles. 0 means unlimited.
	MaxCycles int `yaml:"max_cycles" mapstructure:"max_cycles"`
	// Fields restricts which dirty fields are resolved. Empty means all.
	Fields company.FieldSet `yaml:"-" mapstructure:"-"`
}

// DefaultConfig returns the standard loop settings.
func DefaultConfig() Config {
	return Config{
		FetchLimit:        1000,
		FallbackLimit:     10000,
		IdleSleep:         5 * time.Second,
		CycleSleep:        5 * time.Second,
		MaxRecordAttempts: 3,
		MaxIdleCycles:     3,
	}
}

// Resolvers holds one resolver per enrichable field. A nil resolver leaves
// that field untouched.
type Resolvers struct {
	Domain      resolver.Resolver
	Logo        resolver.Resolver
	Description resolver.Resolver
}

// Summary reports a run.
type Summary struct {
	Cycles      int                          `json:"cycles"`
	Candidates  int                          `json:"candidates"`
	Fixed       int                          `json:"fixed"`
	Skipped     int                          `json:"skipped"`
	Failed      int                          `json:"failed"`
	Fields      map[string]int               `json:"fields"`
	Strategies  map[string]int               `json:"strategies"`
	Quarantined []resilience.QuarantineEntry `json:"quarantined,omitempty"`
	Stalled     bool                         `json:"stalled"`
	Capped      bool                         `json:"capped"`
	Fallbacks   int                          `json:"fallbacks"`
	StartedAt   time.Time                    `json:"started_at"`
	FinishedAt  time.Time                    `json:"finished_at"`
}

// Reconciler runs the loop against one store.
type Reconciler struct {
	store     store.Store
	detector  *company.Detector
	resolvers Resolvers
	writer    *upsert.Writer
	cfg       Config
	clock     resilience.Clock
}

// New creates a Reconciler. A nil clock uses the real one.
func New(st store.Store, detector *company.Detector, resolvers Resolvers, writer *upsert.Writer, cfg Config, clock resilience.Clock) *Reconciler {
	def := DefaultConfig()
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = def.FetchLimit
	}
	if cfg.FallbackLimit <= 0 {
		cfg.FallbackLimit = def.FallbackLimit
	}
	if clock == nil {
		clock = resilience.RealClock{}
	}
	return &Reconciler{
		store:     st,
		detector:  detector,
		resolvers: resolvers,
		writer:    writer,
		cfg:       cfg,
		clock:     clock,
	}
}

// Run loops until the dirty query comes back empty, the liveness guard
// trips, or ctx is canceled. On cancellation the partial summary is
// returned with ctx.Err().
func (r *Reconciler) Run(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		Fields:     make(map[string]int),
		Strategies: make(map[string]int),
		StartedAt:  r.clock.Now(),
	}
	quarantine := resilience.NewQuarantine(r.cfg.MaxRecordAttempts, r.clock)
	idle := 0

	finish := func(err error) (*Summary, error) {
		sum.Quarantined = quarantine.Entries()
		sum.FinishedAt = r.clock.Now()
		return sum, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		if r.cfg.MaxCycles > 0 && sum.Cycles >= r.cfg.MaxCycles {
			sum.Capped = true
			zap.L().Warn("reconcile: cycle cap reached", zap.Int("cycles", sum.Cycles))
			return finish(nil)
		}
		sum.Cycles++

		candidates, err := r.fetch(ctx, quarantine.Keys(), sum)
		if err != nil {
			return finish(err)
		}
		if len(candidates) == 0 {
			zap.L().Info("reconcile: no dirty records left", zap.Int("cycles", sum.Cycles))
			return finish(nil)
		}
		sum.Candidates += len(candidates)

		var updates []company.Record
		skipped, quarantined := 0, 0
		for _, rec := range candidates {
			if err := ctx.Err(); err != nil {
				return finish(err)
			}
			key := string(rec.ID)
			if !quarantine.Quarantined(key) && quarantine.Attempt(key, "still dirty after enrichment") {
				quarantined++
				zap.L().Warn("reconcile: record quarantined",
					zap.String("id", key),
					zap.String("company", rec.Name),
				)
			}
			patched, changed := r.enrich(ctx, rec, sum)
			if changed.Empty() {
				skipped++
				continue
			}
			for _, name := range changed.Names() {
				sum.Fields[name]++
			}
			updates = append(updates, patched)
		}
		sum.Skipped += skipped

		fixed := 0
		if len(updates) > 0 {
			res, err := r.writer.Write(ctx, updates, store.ConflictID)
			sum.Failed += res.Failed
			fixed = res.Written
			sum.Fixed += fixed
			if err != nil {
				return finish(err)
			}
		}

		zap.L().Info("reconcile: cycle complete",
			zap.Int("cycle", sum.Cycles),
			zap.Int("candidates", len(candidates)),
			zap.Int("fixed", fixed),
			zap.Int("skipped", skipped),
			zap.Int("quarantined", quarantined),
		)

		// Setting records aside shrinks the next selection, so it counts as
		// progress for the idle guard.
		if fixed == 0 && quarantined > 0 {
			idle = 0
			if err := r.clock.Sleep(ctx, r.cfg.IdleSleep); err != nil {
				return finish(err)
			}
			continue
		}
		if fixed == 0 {
			idle++
			if r.cfg.MaxIdleCycles > 0 && idle >= r.cfg.MaxIdleCycles {
				sum.Stalled = true
				zap.L().Warn("reconcile: no progress, stopping",
					zap.Int("idle_cycles", idle),
					zap.Int("remaining", len(candidates)),
				)
				return finish(nil)
			}
			if err := r.clock.Sleep(ctx, r.cfg.IdleSleep); err != nil {
				return finish(err)
			}
			continue
		}

		idle = 0
		if err := r.clock.Sleep(ctx, r.cfg.CycleSleep); err != nil {
			return finish(err)
		}
	}
}

// fetch selects the next dirty page, falling back to a full listing
// filtered client-side when the store cannot run the dirty query.
func (r *Reconciler) fetch(ctx context.Context, exclude []string, sum *Summary) ([]company.Record, error) {
	excludeIDs := make([]company.ID, len(exclude))
	for i, k := range exclude {
		excludeIDs[i] = company.ID(k)
	}

	recs, err := r.store.QueryDirty(ctx, store.DirtyQuery{
		Markers:    r.detector.Markers(),
		Limit:      r.cfg.FetchLimit,
		ExcludeIDs: excludeIDs,
		Fields:     r.cfg.Fields,
	})
	if err == nil {
		return recs, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	zap.L().Warn("reconcile: dirty query failed, falling back to full scan", zap.Error(err))
	sum.Fallbacks++

	all, lerr := r.store.List(ctx, store.ListQuery{Limit: r.cfg.FallbackLimit})
	if lerr != nil {
		return nil, eris.Wrap(lerr, "reconcile: fallback list")
	}

	skip := make(map[company.ID]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		skip[id] = true
	}
	var out []company.Record
	for _, rec := range r.detector.FilterFields(all, r.cfg.Fields) {
		if skip[rec.ID] {
			continue
		}
		out = append(out, rec)
		if len(out) == r.cfg.FetchLimit {
			break
		}
	}
	return out, nil
}

// enrich resolves rec's dirty fields in order website, logo, description,
// slug, and returns the patched record with the fields that changed.
func (r *Reconciler) enrich(ctx context.Context, rec company.Record, sum *Summary) (company.Record, company.FieldSet) {
	dirty := r.detector.DirtyFields(rec)
	if !r.cfg.Fields.Empty() {
		dirty &= r.cfg.Fields
	}

	var changed company.FieldSet
	out := rec

	apply := func(f company.Field, res resolver.Resolver, current *string) {
		if !dirty.Has(f) || res == nil {
			return
		}
		got := res.Resolve(ctx, out)
		if !got.Resolved || got.Value == *current {
			return
		}
		*current = got.Value
		changed = changed.Add(f)
		sum.Strategies[f.String()+"/"+got.Strategy]++
	}

	apply(company.FieldWebsite, r.resolvers.Domain, &out.Website)

	if r.hasRealWebsite(out) {
		apply(company.FieldLogo, r.resolvers.Logo, &out.LogoURL)
		apply(company.FieldDescription, r.resolvers.Description, &out.Description)
	} else if dirty.Has(company.FieldLogo) || dirty.Has(company.FieldDescription) {
		zap.L().Debug("reconcile: no usable website, skipping logo and description",
			zap.String("id", string(rec.ID)),
			zap.String("company", rec.Name),
		)
	}

	if dirty.Has(company.FieldSlug) {
		if slug := normalize.Slug(out.Name); slug != "" && slug != out.Slug {
			out.Slug = slug
			changed = changed.Add(company.FieldSlug)
		}
	}
	return out, changed
}

func (r *Reconciler) hasRealWebsite(rec company.Record) bool {
	return normalize.IsHTTP(rec.Website) && !company.Match(rec.Website, r.detector.Markers().Website)
}
