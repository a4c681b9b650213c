package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/directory-cli/internal/company"
)

// SQLiteStore implements Store using modernc.org/sqlite. Ids are UUIDs.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn, table string) (*SQLiteStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validIdent(table) {
		return nil, eris.Errorf("sqlite: invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, table: table}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	website     TEXT NOT NULL UNIQUE,
	category    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	logo_url    TEXT NOT NULL DEFAULT '',
	slug        TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_slug ON %[1]s(slug);
`

// Migrate creates the directory table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, strings.ReplaceAll(sqliteMigration, "%[1]s", s.table))
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) selectList() string {
	return `SELECT id, name, website, category, description, logo_url, slug FROM ` + s.table
}

// QueryDirty selects records with empty or marker-matching watched fields.
func (s *SQLiteStore) QueryDirty(ctx context.Context, q DirtyQuery) ([]company.Record, error) {
	var (
		conds []string
		args  []any
	)
	for _, mc := range watchedColumns(q) {
		conds = append(conds, mc.column+` = ''`)
		for _, p := range likePatterns(mc.markers) {
			conds = append(conds, mc.column+` LIKE ? ESCAPE '\'`)
			args = append(args, p)
		}
	}

	query := s.selectList() + ` WHERE (` + strings.Join(conds, " OR ") + `)`
	if len(q.ExcludeIDs) > 0 {
		query += ` AND id NOT IN (` + placeholders(len(q.ExcludeIDs)) + `)`
		for _, id := range q.ExcludeIDs {
			args = append(args, string(id))
		}
	}
	query += ` ORDER BY rowid`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	return s.query(ctx, "query dirty", query, args...)
}

// List returns a page of records.
func (s *SQLiteStore) List(ctx context.Context, q ListQuery) ([]company.Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	return s.query(ctx, "list", s.selectList()+` ORDER BY rowid LIMIT ? OFFSET ?`, limit, q.Offset)
}

func (s *SQLiteStore) query(ctx context.Context, op, query string, args ...any) ([]company.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close()

	var out []company.Record
	for rows.Next() {
		var r company.Record
		var id string
		if err := rows.Scan(&id, &r.Name, &r.Website, &r.Category, &r.Description, &r.LogoURL, &r.Slug); err != nil {
			return nil, eris.Wrapf(err, "sqlite: %s scan", op)
		}
		r.ID = company.ID(id)
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: %s iterate", op)
}

// Upsert writes records in one transaction. InsertNewWebsite skips rows
// whose website is already stored.
func (s *SQLiteStore) Upsert(ctx context.Context, records []company.Record, key ConflictKey) error {
	if len(records) == 0 {
		return nil
	}
	if !key.valid() {
		return eris.Errorf("sqlite: unsupported conflict key %q", key)
	}

	onConflict := `DO UPDATE SET
			name = excluded.name,
			website = excluded.website,
			category = excluded.category,
			description = excluded.description,
			logo_url = excluded.logo_url,
			slug = excluded.slug,
			updated_at = excluded.updated_at`
	if key.KeepsExisting() {
		onConflict = `DO NOTHING`
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+s.table+` (id, name, website, category, description, logo_url, slug, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(`+key.Column()+`) `+onConflict)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		id := string(r.ID)
		if id == "" {
			if key == ConflictID {
				return eris.Errorf("sqlite: upsert on id without id for %q", r.Name)
			}
			id = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, id, r.Name, r.Website, r.Category, r.Description, r.LogoURL, r.Slug, now, now); err != nil {
			return eris.Wrapf(err, "sqlite: upsert %q", r.Name)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
