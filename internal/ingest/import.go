package ingest

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/store"
	"github.com/sells-group/directory-cli/internal/upsert"
)

// Summary reports an import.
type Summary struct {
	Sources    map[string]int `json:"sources"`
	Candidates int            `json:"candidates"`
	Invalid    int            `json:"invalid"`
	Duplicates int            `json:"duplicates"`
	Collisions int            `json:"collisions"`
	Existing   int            `json:"existing"`
	Records    int            `json:"records"`
	Upserts    upsert.Result  `json:"upserts"`
}

// Load reads every source concurrently, at most concurrency at a time, and
// returns the candidates concatenated in source order.
func Load(ctx context.Context, sources []Source, concurrency int) ([]company.Candidate, map[string]int, error) {
	slots := make([][]company.Candidate, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, src := range sources {
		g.Go(func() error {
			var out []company.Candidate
			for c, err := range src.Records(gctx) {
				if err != nil {
					return eris.Wrapf(err, "ingest: load %s", src.Name())
				}
				out = append(out, c)
			}
			slots[i] = out
			zap.L().Info("ingest: source loaded",
				zap.String("source", src.Name()),
				zap.Int("candidates", len(out)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	counts := make(map[string]int, len(sources))
	var all []company.Candidate
	for i, s := range slots {
		counts[sources[i].Name()] += len(s)
		all = append(all, s...)
	}
	return all, counts, nil
}

// Prepare cleans, deduplicates and converts candidates into new records.
// Candidates without a name are dropped. When two kept candidates still map
// to the same website (for example two names with one slug both getting the
// same missing-domain placeholder), only the first is kept so a single
// upsert never repeats its conflict key.
func Prepare(candidates []company.Candidate, sum *Summary) []company.Record {
	cleaned := make([]company.Candidate, 0, len(candidates))
	for _, c := range candidates {
		c = c.Clean()
		if c.Name == "" {
			sum.Invalid++
			continue
		}
		cleaned = append(cleaned, c)
	}

	unique := company.Deduplicate(cleaned)
	sum.Duplicates += len(cleaned) - len(unique)

	seen := make(map[string]bool, len(unique))
	records := make([]company.Record, 0, len(unique))
	for _, c := range unique {
		r := c.Record()
		key := strings.ToLower(r.Website)
		if seen[key] {
			sum.Collisions++
			zap.L().Debug("ingest: dropping website collision",
				zap.String("company", r.Name),
				zap.String("website", r.Website),
			)
			continue
		}
		seen[key] = true
		records = append(records, r)
	}
	return records
}

// existingPageSize is the List page size used to load stored keys.
const existingPageSize = 1000

// Importer loads sources and inserts the records the store does not hold
// yet. Stored rows are never overwritten, so fields cleaned by the
// reconcile loop survive a re-import.
type Importer struct {
	store       store.Store
	writer      *upsert.Writer
	concurrency int
}

// NewImporter creates an Importer that checks st for stored records and
// writes through w. A nil st skips the check and relies on the insert
// conflict rule alone.
func NewImporter(st store.Store, w *upsert.Writer, concurrency int) *Importer {
	return &Importer{store: st, writer: w, concurrency: concurrency}
}

// Import runs the whole ingest.
func (im *Importer) Import(ctx context.Context, sources []Source) (*Summary, error) {
	candidates, counts, err := Load(ctx, sources, im.concurrency)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Sources: counts, Candidates: len(candidates)}
	records := Prepare(candidates, sum)

	if im.store != nil {
		known, err := loadKnown(ctx, im.store)
		if err != nil {
			return sum, err
		}
		records = known.drop(records, sum)
	}
	sum.Records = len(records)

	zap.L().Info("ingest: prepared records",
		zap.Int("candidates", sum.Candidates),
		zap.Int("records", sum.Records),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("existing", sum.Existing),
		zap.Int("invalid", sum.Invalid),
	)

	res, err := im.writer.Write(ctx, records, store.InsertNewWebsite)
	sum.Upserts = res
	return sum, err
}

// knownKeys holds the lowercased websites and names already stored.
type knownKeys struct {
	websites map[string]bool
	names    map[string]bool
}

func loadKnown(ctx context.Context, st store.Store) (knownKeys, error) {
	k := knownKeys{websites: make(map[string]bool), names: make(map[string]bool)}
	for offset := 0; ; offset += existingPageSize {
		page, err := st.List(ctx, store.ListQuery{Limit: existingPageSize, Offset: offset})
		if err != nil {
			return k, eris.Wrap(err, "ingest: list stored records")
		}
		for _, r := range page {
			k.websites[strings.ToLower(r.Website)] = true
			k.names[strings.ToLower(r.Name)] = true
		}
		if len(page) < existingPageSize {
			return k, nil
		}
	}
}

// drop removes records already stored, applying the deduplication rule
// across stored and new rows: a real website is stored when its website
// is, and a placeholder website is stored when its name is. The name check
// also catches rows whose placeholder the reconcile loop has since
// replaced.
func (k knownKeys) drop(records []company.Record, sum *Summary) []company.Record {
	out := records[:0]
	for _, r := range records {
		stored := k.websites[strings.ToLower(r.Website)]
		if strings.HasPrefix(r.Website, company.MissingDomainScheme) {
			stored = stored || k.names[strings.ToLower(r.Name)]
		}
		if stored {
			sum.Existing++
			continue
		}
		out = append(out, r)
	}
	return out
}
