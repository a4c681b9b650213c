package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FileCache is a Cache backed by a single JSON document. The document is
// read in full on first access and rewritten in full after every Put.
// Concurrent processes sharing one file will lose each other's writes.
type FileCache struct {
	path string

	mu      sync.Mutex
	loaded  bool
	entries map[string]json.RawMessage
}

// NewFileCache creates a FileCache at path. Nothing is read until first use.
func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

// Get returns the entry stored for key.
func (c *FileCache) Get(_ context.Context, key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()

	v, ok := c.entries[Key(key)]
	if !ok {
		return Entry{}, false
	}
	return Entry{Value: v}, true
}

// Put stores e under key and flushes the whole document to disk.
func (c *FileCache) Put(_ context.Context, key string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()

	v := e.Value
	if len(v) == 0 {
		v = Miss().Value
	}
	c.entries[Key(key)] = v
	return c.flush()
}

// Len returns the number of cached keys.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()
	return len(c.entries)
}

// Close is a no-op; every Put is already flushed.
func (c *FileCache) Close() error { return nil }

// load reads the document once. A missing file starts empty; a corrupt one
// is logged and replaced on the next flush.
func (c *FileCache) load() {
	if c.loaded {
		return
	}
	c.loaded = true
	c.entries = make(map[string]json.RawMessage)

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			zap.L().Warn("cache: read failed, starting empty", zap.String("path", c.path), zap.Error(err))
		}
		return
	}
	if len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		zap.L().Warn("cache: corrupt file, starting empty", zap.String("path", c.path), zap.Error(err))
		c.entries = make(map[string]json.RawMessage)
	}
}

func (c *FileCache) flush() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return eris.Wrap(err, "cache: marshal")
	}

	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "cache: mkdir %s", dir)
		}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "cache: write %s", tmp)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return eris.Wrapf(err, "cache: rename %s", tmp)
	}
	return nil
}
