package reconcile

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/normalize"
	"github.com/sells-group/directory-cli/internal/store"
	"github.com/sells-group/directory-cli/internal/upsert"
)

// SlugSummary reports a slug backfill.
type SlugSummary struct {
	Scanned int           `json:"scanned"`
	Stale   int           `json:"stale"`
	Upserts upsert.Result `json:"upserts"`
}

// BackfillSlugs pages through every record and rewrites missing or stale
// slugs. Server-side dirty queries cannot see stale slugs, so this scans
// the whole table.
func BackfillSlugs(ctx context.Context, st store.Store, w *upsert.Writer, pageSize int) (*SlugSummary, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}
	sum := &SlugSummary{}

	var patches []company.Record
	for offset := 0; ; offset += pageSize {
		page, err := st.List(ctx, store.ListQuery{Limit: pageSize, Offset: offset})
		if err != nil {
			return sum, eris.Wrapf(err, "reconcile: list slugs at offset %d", offset)
		}
		for _, rec := range page {
			sum.Scanned++
			want := normalize.Slug(rec.Name)
			if want == "" || want == rec.Slug {
				continue
			}
			rec.Slug = want
			patches = append(patches, rec)
		}
		if len(page) < pageSize {
			break
		}
	}
	sum.Stale = len(patches)

	zap.L().Info("reconcile: slug scan complete",
		zap.Int("scanned", sum.Scanned),
		zap.Int("stale", sum.Stale),
	)
	if len(patches) == 0 {
		return sum, nil
	}

	res, err := w.Write(ctx, patches, store.ConflictID)
	sum.Upserts = res
	return sum, err
}
