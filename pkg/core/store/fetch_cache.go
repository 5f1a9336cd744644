// Package store holds the in-process caches. The only state this service
// keeps is the time-bounded fetch cache; nothing is ever persisted.
package store

import (
	"time"

	"github.com/alphadose/haxmap"

	"twstock_analyzer/pkg/core/dataset"
)

type cacheEntry struct {
	sources []dataset.SourceTable
	expires time.Time
}

// FetchCache caches the filtered per-source tables for one stock id so a
// resubmission (or the CSV export) within the TTL does not hit TWSE again.
// Reads are concurrent; population is not exclusive — two misses may both
// fetch and both store, and the last write wins.
type FetchCache struct {
	entries *haxmap.Map[string, cacheEntry]
	ttl     time.Duration
	now     func() time.Time
}

// NewFetchCache creates a cache whose entries expire after ttl.
func NewFetchCache(ttl time.Duration) *FetchCache {
	return &FetchCache{
		entries: haxmap.New[string, cacheEntry](),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached source tables for the stock id, if present and not
// expired. Expired entries are dropped on read.
func (c *FetchCache) Get(stockID string) ([]dataset.SourceTable, bool) {
	entry, ok := c.entries.Get(stockID)
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		c.entries.Del(stockID)
		return nil, false
	}
	return entry.sources, true
}

// Put stores the source tables for the stock id with a fresh expiry.
func (c *FetchCache) Put(stockID string, sources []dataset.SourceTable) {
	c.entries.Set(stockID, cacheEntry{
		sources: sources,
		expires: c.now().Add(c.ttl),
	})
}
