package lookup

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type cacheEntry struct {
	Product   EnhancedProduct `json:"product"`
	Timestamp time.Time       `json:"timestamp"`
}

// Cache is a TTL cache of enhanced products keyed by barcode. Entries
// older than maxAge are never returned: they read as absent and are
// evicted lazily, plus proactively once the cache grows past sweepSize.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]cacheEntry
	maxAge    time.Duration
	sweepSize int

	now func() time.Time
}

// NewCache creates a Cache.
func NewCache(maxAge time.Duration, sweepSize int) *Cache {
	return &Cache{
		entries:   make(map[string]cacheEntry),
		maxAge:    maxAge,
		sweepSize: sweepSize,
		now:       time.Now,
	}
}

// Get returns a copy of the cached product, if present and fresh.
func (c *Cache) Get(barcode string) (*EnhancedProduct, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[barcode]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.Timestamp) > c.maxAge {
		delete(c.entries, barcode)
		return nil, false
	}
	p := e.Product
	return &p, true
}

// Set stores a product and sweeps expired entries once the cache exceeds
// the size threshold.
func (c *Cache) Set(barcode string, p EnhancedProduct) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[barcode] = cacheEntry{Product: p, Timestamp: c.now()}
	if len(c.entries) > c.sweepSize {
		c.sweep()
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweep removes expired entries. Caller holds the lock.
func (c *Cache) sweep() {
	cutoff := c.now().Add(-c.maxAge)
	removed := 0
	for barcode, e := range c.entries {
		if e.Timestamp.Before(cutoff) {
			delete(c.entries, barcode)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("lookup: swept expired cache entries", "removed", removed, "remaining", len(c.entries))
	}
}

// LoadFrom restores entries persisted by SaveTo. A missing file starts an
// empty cache; expired entries are dropped on load.
func (c *Cache) LoadFrom(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache file %s: %w", path, err)
	}

	var entries map[string]cacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to unmarshal cache data from %s: %w", path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.maxAge)
	for barcode, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			c.entries[barcode] = e
		}
	}
	return nil
}

// SaveTo persists the current entries to a JSON file.
func (c *Cache) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	c.mu.Lock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file %s: %w", path, err)
	}
	return nil
}
