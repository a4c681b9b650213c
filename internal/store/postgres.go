package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/db"
)

// PostgresStore implements Store using pgxpool. Ids are BIGSERIAL.
type PostgresStore struct {
	pool    db.Pool
	table   string
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString, table string, poolCfg *PoolConfig) (*PostgresStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validIdent(table) {
		return nil, eris.Errorf("postgres: invalid table name %q", table)
	}

	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, table: table, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool db.Pool, table string) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresStore{pool: pool, table: table}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	website     TEXT NOT NULL UNIQUE,
	category    TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	logo_url    TEXT NOT NULL DEFAULT '',
	slug        TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_slug ON %[1]s(slug);
`

// Migrate creates the directory table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, strings.ReplaceAll(postgresMigration, "%[1]s", s.table))
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the pool when the store owns it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) selectList() string {
	return `SELECT id::text, name, website, COALESCE(category, ''), COALESCE(description, ''), COALESCE(logo_url, ''), COALESCE(slug, '') FROM ` + s.table
}

// QueryDirty selects records with empty or marker-matching watched fields.
func (s *PostgresStore) QueryDirty(ctx context.Context, q DirtyQuery) ([]company.Record, error) {
	var (
		conds []string
		args  []any
	)
	for _, mc := range watchedColumns(q) {
		conds = append(conds, "COALESCE("+mc.column+", '') = ''")
		if patterns := likePatterns(mc.markers); len(patterns) > 0 {
			args = append(args, patterns)
			conds = append(conds, mc.column+" ILIKE ANY($"+strconv.Itoa(len(args))+")")
		}
	}

	query := s.selectList() + " WHERE (" + strings.Join(conds, " OR ") + ")"
	if len(q.ExcludeIDs) > 0 {
		args = append(args, idStrings(q.ExcludeIDs))
		query += " AND id::text <> ALL($" + strconv.Itoa(len(args)) + ")"
	}
	query += " ORDER BY id"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	return s.query(ctx, "query dirty", query, args...)
}

// List returns a page of records.
func (s *PostgresStore) List(ctx context.Context, q ListQuery) ([]company.Record, error) {
	query := s.selectList() + " ORDER BY id OFFSET $1"
	args := []any{q.Offset}
	if q.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, q.Limit)
	}
	return s.query(ctx, "list", query, args...)
}

func (s *PostgresStore) query(ctx context.Context, op, query string, args ...any) ([]company.Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	defer rows.Close()

	var out []company.Record
	for rows.Next() {
		var r company.Record
		var id string
		if err := rows.Scan(&id, &r.Name, &r.Website, &r.Category, &r.Description, &r.LogoURL, &r.Slug); err != nil {
			return nil, eris.Wrapf(err, "postgres: %s scan", op)
		}
		r.ID = company.ID(id)
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: %s iterate", op)
}

var upsertColumns = []string{"name", "website", "category", "description", "logo_url", "slug", "updated_at"}

// Upsert writes records through db.WriteStaged. Website keys omit the id
// column so new rows draw from the sequence.
func (s *PostgresStore) Upsert(ctx context.Context, records []company.Record, key ConflictKey) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	var cols []string

	switch key {
	case ConflictWebsite, InsertNewWebsite:
		cols = upsertColumns
		for _, r := range records {
			rows = append(rows, []any{r.Name, r.Website, r.Category, r.Description, r.LogoURL, r.Slug, now})
		}
	case ConflictID:
		cols = append([]string{"id"}, upsertColumns...)
		for _, r := range records {
			id, err := strconv.ParseInt(string(r.ID), 10, 64)
			if err != nil {
				return eris.Wrapf(err, "postgres: upsert: invalid id %q", r.ID)
			}
			rows = append(rows, []any{id, r.Name, r.Website, r.Category, r.Description, r.LogoURL, r.Slug, now})
		}
	default:
		return eris.Errorf("postgres: unsupported conflict key %q", key)
	}

	w := db.StagedWrite{
		Table:   s.table,
		Columns: cols,
		Key:     []string{key.Column()},
	}
	if key.KeepsExisting() {
		w.OnConflict = db.Keep
	}
	n, err := db.WriteStaged(ctx, s.pool, w, rows)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert")
	}
	if skipped := int64(len(rows)) - n; key.KeepsExisting() && skipped > 0 {
		zap.L().Debug("postgres: kept stored rows", zap.Int64("skipped", skipped))
	}
	return nil
}
