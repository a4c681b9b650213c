package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// OnConflict selects what a staged write does with rows whose key is
// already stored.
type OnConflict int

const (
	// Overwrite replaces every non-key column of the stored row.
	Overwrite OnConflict = iota
	// Keep leaves the stored row as it is and skips the incoming one.
	Keep
)

// StagedWrite describes one batch written into Table through a staging
// table.
type StagedWrite struct {
	Table      string
	Columns    []string
	Key        []string
	OnConflict OnConflict
}

func (w StagedWrite) validate() error {
	switch {
	case w.Table == "":
		return eris.New("db: staged write: no table")
	case len(w.Columns) == 0:
		return eris.New("db: staged write: no columns")
	case len(w.Key) == 0:
		return eris.New("db: staged write: no key columns")
	}
	return nil
}

// staging names the per-transaction table rows are copied into.
func (w StagedWrite) staging() pgx.Identifier {
	return pgx.Identifier{"_stage_" + strings.ReplaceAll(w.Table, ".", "_")}
}

func (w StagedWrite) createSQL() string {
	return "CREATE TEMP TABLE " + w.staging().Sanitize() +
		" (LIKE " + tableIdent(w.Table).Sanitize() + " INCLUDING DEFAULTS) ON COMMIT DROP"
}

// mergeSQL moves the staged rows into the target table.
func (w StagedWrite) mergeSQL() string {
	cols := identList(w.Columns)
	var b strings.Builder
	b.WriteString("INSERT INTO " + tableIdent(w.Table).Sanitize() + " (" + cols + ")")
	b.WriteString(" SELECT " + cols + " FROM " + w.staging().Sanitize())
	b.WriteString(" ON CONFLICT (" + identList(w.Key) + ")")

	if w.OnConflict == Keep {
		b.WriteString(" DO NOTHING")
		return b.String()
	}

	key := make(map[string]bool, len(w.Key))
	for _, k := range w.Key {
		key[k] = true
	}
	var set []string
	for _, c := range w.Columns {
		if key[c] {
			continue
		}
		q := pgx.Identifier{c}.Sanitize()
		set = append(set, q+" = EXCLUDED."+q)
	}
	if len(set) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String()
	}
	b.WriteString(" DO UPDATE SET " + strings.Join(set, ", "))
	return b.String()
}

// WriteStaged copies rows into a temp table and merges them into w.Table in
// one transaction, returning the number of rows inserted or updated. Rows
// must not repeat a key within one call.
func WriteStaged(ctx context.Context, pool Pool, w StagedWrite, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := w.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: staged write: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, w.createSQL()); err != nil {
		return 0, eris.Wrapf(err, "db: staged write: create staging for %s", w.Table)
	}
	if _, err := tx.CopyFrom(ctx, w.staging(), w.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: staged write: copy %d rows for %s", len(rows), w.Table)
	}

	tag, err := tx.Exec(ctx, w.mergeSQL())
	if err != nil {
		return 0, eris.Wrapf(err, "db: staged write: merge into %s", w.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: staged write: commit")
	}
	return tag.RowsAffected(), nil
}

// tableIdent splits an optional schema prefix off table.
func tableIdent(table string) pgx.Identifier {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}

func identList(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(out, ", ")
}
