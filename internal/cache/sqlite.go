package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteCacheMigration = `
CREATE TABLE IF NOT EXISTS lookup_cache (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// SQLiteCache is a Cache backed by a SQLite table. Each Put commits on its
// own, so the cache survives crashes between writes.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens (and migrates) a SQLite cache at dsn.
func NewSQLiteCache(ctx context.Context, dsn string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteCacheMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "cache: migrate")
	}
	return &SQLiteCache{db: db}, nil
}

// Get returns the entry stored for key. Read errors are logged and reported
// as a miss so lookups fall through to the provider.
func (c *SQLiteCache) Get(ctx context.Context, key string) (Entry, bool) {
	var v string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM lookup_cache WHERE key = ?`, Key(key)).Scan(&v)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			zap.L().Warn("cache: sqlite get failed", zap.String("key", Key(key)), zap.Error(err))
		}
		return Entry{}, false
	}
	return Entry{Value: json.RawMessage(v)}, true
}

// Put upserts e under key.
func (c *SQLiteCache) Put(ctx context.Context, key string, e Entry) error {
	v := e.Value
	if len(v) == 0 {
		v = Miss().Value
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO lookup_cache (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		Key(key), string(v))
	return eris.Wrap(err, "cache: sqlite put")
}

// Close closes the underlying database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
