// Package store persists directory records. Backends share one contract:
// a dirty-record query driven by placeholder markers, a paged listing, and
// batched upserts keyed by a conflict column.
package store

import (
	"context"

	"github.com/sells-group/directory-cli/internal/company"
)

// ConflictKey names the unique column an upsert resolves conflicts on and
// whether a conflicting row is overwritten or kept.
type ConflictKey string

// Supported conflict keys.
const (
	ConflictWebsite ConflictKey = "website"
	ConflictID      ConflictKey = "id"
	// InsertNewWebsite inserts records whose website is not stored yet and
	// leaves already stored rows untouched.
	InsertNewWebsite ConflictKey = "website:keep"
)

// Column returns the unique column k resolves conflicts on.
func (k ConflictKey) Column() string {
	if k == InsertNewWebsite {
		return string(ConflictWebsite)
	}
	return string(k)
}

// KeepsExisting reports whether rows already stored under k are left as
// they are.
func (k ConflictKey) KeepsExisting() bool { return k == InsertNewWebsite }

func (k ConflictKey) valid() bool {
	return k == ConflictWebsite || k == ConflictID || k == InsertNewWebsite
}

// DefaultTable is the directory table name.
const DefaultTable = "companies"

// Columns lists the record columns in storage order.
var Columns = []string{"id", "name", "website", "category", "description", "logo_url", "slug"}

// DirtyQuery selects records with placeholder content.
type DirtyQuery struct {
	Markers company.Markers
	// Limit caps the number of rows returned; 0 uses the backend default.
	Limit int
	// ExcludeIDs are skipped even when dirty.
	ExcludeIDs []company.ID
	// Fields restricts the match to these fields. Empty means all.
	Fields company.FieldSet
}

// ListQuery pages through all records in id order.
type ListQuery struct {
	Limit  int
	Offset int
}

// Store defines the persistence interface for directory records.
type Store interface {
	// QueryDirty returns records where any watched field is empty or matches
	// a placeholder marker. Stale slugs are not detected server-side.
	QueryDirty(ctx context.Context, q DirtyQuery) ([]company.Record, error)
	// List returns a page of records in a stable order.
	List(ctx context.Context, q ListQuery) ([]company.Record, error)
	// Upsert writes records in one request, resolving conflicts on key.
	// Records without an id are inserted with a storage-assigned id.
	Upsert(ctx context.Context, records []company.Record, key ConflictKey) error

	Migrate(ctx context.Context) error
	Close() error
}
