// Package cache persists the local-key → remote-id mapping that makes
// migration runs resumable. The file is the single source of truth for
// "already created": every successful remote creation is flushed to
// disk before the driver moves on, so a crash loses at most the one
// in-flight entity.
package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"planport/internal/domain"
)

const fileVersion = 1

// Entry is one persisted identity mapping. Unknown JSON fields are
// ignored on load so newer writers stay compatible with older readers.
type Entry struct {
	RemoteID   int64             `json:"remote_id"`
	Kind       domain.EntityKind `json:"kind"`
	RecordedAt string            `json:"recorded_at,omitempty"`
}

type document struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Cache is a durable identity cache backed by a single JSON document.
// Record writes the whole document via write-temp-then-rename, so the
// file on disk is always a complete, parsable snapshot.
type Cache struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
}

// Open loads the cache at path, creating parent directories as needed.
// A missing file yields an empty cache. A corrupt file or corrupt
// individual entries degrade to "not yet created" with a logged
// warning; they never abort the run.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read identity cache: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return c, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("cache: %s is not valid JSON, starting empty (entities will be re-created): %v", path, err)
		return c, nil
	}
	for key, entry := range doc.Entries {
		if entry.RemoteID <= 0 || domain.ValidateEntityKind(string(entry.Kind)) != nil {
			log.Printf("cache: dropping corrupt entry %q (remote_id=%d kind=%q)", key, entry.RemoteID, entry.Kind)
			continue
		}
		c.entries[key] = entry
	}
	return c, nil
}

// Lookup returns the remote id recorded for the given local key.
func (c *Cache) Lookup(localKey string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[localKey]
	if !ok {
		return 0, false
	}
	return entry.RemoteID, true
}

// Record durably upserts a mapping and flushes it to disk before
// returning. Recording an identical mapping twice is a no-op; recording
// a different remote id for an existing key is an error, because it
// means two runs disagree about what the key refers to.
func (c *Cache) Record(localKey string, remoteID int64, kind domain.EntityKind) error {
	if remoteID <= 0 {
		return fmt.Errorf("refusing to record non-positive remote id %d for %q", remoteID, localKey)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[localKey]; ok {
		if existing.RemoteID == remoteID {
			return nil
		}
		return fmt.Errorf("cache conflict for %q: recorded remote id %d, new remote id %d", localKey, existing.RemoteID, remoteID)
	}

	c.entries[localKey] = Entry{
		RemoteID:   remoteID,
		Kind:       kind,
		RecordedAt: time.Now().UTC().Format(time.RFC3339),
	}
	return c.flushLocked()
}

// Remove drops a mapping, forcing re-creation on the next run.
func (c *Cache) Remove(localKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[localKey]; !ok {
		return nil
	}
	delete(c.entries, localKey)
	return c.flushLocked()
}

// Len returns the number of cached mappings.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns a copy of all entries, for listing.
func (c *Cache) Snapshot() map[string]Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Path returns the backing file path.
func (c *Cache) Path() string {
	return c.path
}

func (c *Cache) flushLocked() error {
	doc := document{Version: fileVersion, Entries: c.entries}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode identity cache: %w", err)
	}
	if err := atomic.WriteFile(c.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write identity cache: %w", err)
	}
	return nil
}
