package data

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"wf-backtest/internal/model"
)

// CacheEntry is a loaded series and its expiry.
type CacheEntry struct {
	Series    *model.Series
	ExpiresAt time.Time
}

// SeriesCache keeps recently loaded data files in memory. Entries are keyed by
// path, size and modification time, so an edited file is loaded again.
// A nil *SeriesCache is valid and caches nothing.
type SeriesCache struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
	ttl   time.Duration
	now   func() time.Time
}

// NewSeriesCache returns a cache whose entries live for ttl. A ttl <= 0 disables
// caching and returns nil.
func NewSeriesCache(ttl time.Duration) *SeriesCache {
	if ttl <= 0 {
		return nil
	}
	return &SeriesCache{
		store: make(map[string]*CacheEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get retrieves a cached series if available and not expired.
func (c *SeriesCache) Get(key string) (*model.Series, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.store[key]
	if !exists || c.now().After(entry.ExpiresAt) {
		return nil, false
	}
	return entry.Series, true
}

// Set stores a series and drops expired entries.
func (c *SeriesCache) Set(key string, s *model.Series) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.store {
		if now.After(e.ExpiresAt) {
			delete(c.store, k)
		}
	}
	c.store[key] = &CacheEntry{Series: s, ExpiresAt: now.Add(c.ttl)}
}

// Len counts live and expired entries not yet dropped.
func (c *SeriesCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Clear removes all entries from the cache.
func (c *SeriesCache) Clear() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store = make(map[string]*CacheEntry)
}

// Load returns the series at path, from the cache when the file is unchanged.
// The ATR period is part of the key because EnsureATR trims the series.
func (c *SeriesCache) Load(path string, atrPeriod int) (*model.Series, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	key := GenerateCacheKey(path, info.Size(), info.ModTime(), atrPeriod)
	if s, ok := c.Get(key); ok {
		return s, nil
	}
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	if s, err = EnsureATR(s, atrPeriod); err != nil {
		return nil, err
	}
	c.Set(key, s)
	return s, nil
}

// GenerateCacheKey creates a cache key from a file's identity.
func GenerateCacheKey(path string, size int64, mod time.Time, atrPeriod int) string {
	keyStr := fmt.Sprintf("%s:%d:%d:%d", path, size, mod.UnixNano(), atrPeriod)
	hash := sha256.Sum256([]byte(keyStr))
	return hex.EncodeToString(hash[:])
}
