// Package cache persists external lookup results keyed by normalized subject
// name, so repeated runs never re-query a provider for a name already seen.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
)

// Cache stores lookup results. A cached empty Entry records a lookup that
// found nothing and is distinct from a key that was never looked up.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool)
	Put(ctx context.Context, key string, e Entry) error
	Close() error
}

// Entry is one cached provider response.
type Entry struct {
	Value json.RawMessage
}

// Miss returns the explicit empty-result marker.
func Miss() Entry { return Entry{Value: json.RawMessage(`{}`)} }

// Empty reports whether the entry records a lookup that found nothing.
func (e Entry) Empty() bool {
	v := bytes.TrimSpace(e.Value)
	return len(v) == 0 || bytes.Equal(v, []byte("{}")) || bytes.Equal(v, []byte("null"))
}

// Key normalizes a subject name into a cache key.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
