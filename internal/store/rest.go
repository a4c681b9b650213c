package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/pkg/postgrest"
)

// maxURLExcludes bounds the ids sent in one not.in filter. Longer exclude
// lists are applied client-side to an over-fetched page so the request URL
// stays within gateway limits.
const maxURLExcludes = 200

// RESTStore implements Store over a PostgREST table endpoint.
type RESTStore struct {
	client postgrest.Client
	table  string
}

// NewREST creates a RESTStore for table.
func NewREST(client postgrest.Client, table string) *RESTStore {
	if table == "" {
		table = DefaultTable
	}
	return &RESTStore{client: client, table: table}
}

// QueryDirty selects records with empty, null or marker-matching watched
// fields. Markers become ilike conditions inside one or=(...) group.
func (s *RESTStore) QueryDirty(ctx context.Context, q DirtyQuery) ([]company.Record, error) {
	var or []postgrest.Condition
	for _, mc := range watchedColumns(q) {
		or = append(or, postgrest.Eq(mc.column, ""), postgrest.IsNull(mc.column))
		for _, m := range mc.markers {
			or = append(or, postgrest.Ilike(mc.column, ilikePattern(m)))
		}
	}

	pq := postgrest.Query{
		Columns: Columns,
		Or:      or,
		Order:   "id.asc",
		Limit:   q.Limit,
	}

	sent, local := q.ExcludeIDs, []company.ID(nil)
	if len(sent) > maxURLExcludes {
		sent, local = sent[:maxURLExcludes], sent[maxURLExcludes:]
		if pq.Limit > 0 {
			pq.Limit += len(local)
		}
	}
	if len(sent) > 0 {
		pq.Filters = append(pq.Filters, postgrest.NotIn("id", idStrings(sent)))
	}

	recs, err := s.selectRecords(ctx, "query dirty", pq)
	if err != nil || len(local) == 0 {
		return recs, err
	}

	skip := make(map[company.ID]bool, len(local))
	for _, id := range local {
		skip[id] = true
	}
	out := recs[:0]
	for _, r := range recs {
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

// List returns a page of records.
func (s *RESTStore) List(ctx context.Context, q ListQuery) ([]company.Record, error) {
	return s.selectRecords(ctx, "list", postgrest.Query{
		Columns: Columns,
		Order:   "id.asc",
		Limit:   q.Limit,
		Offset:  q.Offset,
	})
}

func (s *RESTStore) selectRecords(ctx context.Context, op string, q postgrest.Query) ([]company.Record, error) {
	var rows []restRow
	if err := s.client.Select(ctx, s.table, q, &rows); err != nil {
		return nil, eris.Wrapf(err, "rest: %s", op)
	}
	out := make([]company.Record, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

// Upsert posts records in one request. InsertNewWebsite asks PostgREST to
// ignore rows whose website is already stored.
func (s *RESTStore) Upsert(ctx context.Context, records []company.Record, key ConflictKey) error {
	if len(records) == 0 {
		return nil
	}
	if !key.valid() {
		return eris.Errorf("rest: unsupported conflict key %q", key)
	}
	if key == ConflictID {
		for _, r := range records {
			if r.ID == "" {
				return eris.Errorf("rest: upsert on id without id for %q", r.Name)
			}
		}
	}
	res := postgrest.MergeDuplicates
	if key.KeepsExisting() {
		res = postgrest.IgnoreDuplicates
	}
	return eris.Wrap(s.client.Upsert(ctx, s.table, records, key.Column(), res), "rest: upsert")
}

// Migrate is a no-op; the REST schema is owned by the hosting project.
func (s *RESTStore) Migrate(_ context.Context) error {
	zap.L().Info("rest: schema is managed remotely, skipping migrate", zap.String("table", s.table))
	return nil
}

// Close is a no-op.
func (s *RESTStore) Close() error { return nil }

// restRow tolerates null text columns.
type restRow struct {
	ID          company.ID `json:"id"`
	Name        *string    `json:"name"`
	Website     *string    `json:"website"`
	Category    *string    `json:"category"`
	Description *string    `json:"description"`
	LogoURL     *string    `json:"logo_url"`
	Slug        *string    `json:"slug"`
}

func (r restRow) record() company.Record {
	return company.Record{
		ID:          r.ID,
		Name:        deref(r.Name),
		Website:     deref(r.Website),
		Category:    deref(r.Category),
		Description: deref(r.Description),
		LogoURL:     deref(r.LogoURL),
		Slug:        deref(r.Slug),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
