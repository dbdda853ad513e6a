package optimizer

import (
	"sync"
	"time"

	"github.com/siherrmann/graphrag/model"
)

type cacheEntry struct {
	results  []model.Result
	storedAt time.Time
	seq      uint64
}

// queryCache is a TTL cache with lazy expiry. When it grows past its limit the
// entry stored first is evicted, reads do not refresh entries.
type queryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	limit   int
	entries map[string]cacheEntry
	seq     uint64
	now     func() time.Time
}

func newQueryCache(ttl time.Duration, limit int, now func() time.Time) *queryCache {
	return &queryCache{
		ttl:     ttl,
		limit:   limit,
		entries: map[string]cacheEntry{},
		now:     now,
	}
}

// contains reports whether key is live and whether an expired entry was removed
func (c *queryCache) contains(key string) (ok bool, expired bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, found := c.entries[key]
	if !found {
		return false, false
	}
	if c.expired(entry) {
		delete(c.entries, key)
		return false, true
	}
	return true, false
}

func (c *queryCache) get(key string) ([]model.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, found := c.entries[key]
	if !found || c.expired(entry) {
		return nil, false
	}
	return cloneResults(entry.results), true
}

// add stores results and returns the evicted key, if any
func (c *queryCache) add(key string, results []model.Result) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.entries[key] = cacheEntry{results: cloneResults(results), storedAt: c.now(), seq: c.seq}
	if c.limit <= 0 || len(c.entries) <= c.limit {
		return ""
	}

	oldestKey := ""
	var oldest cacheEntry
	for k, e := range c.entries {
		if oldestKey == "" || e.storedAt.Before(oldest.storedAt) ||
			(e.storedAt.Equal(oldest.storedAt) && e.seq < oldest.seq) {
			oldestKey, oldest = k, e
		}
	}
	delete(c.entries, oldestKey)
	return oldestKey
}

func (c *queryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *queryCache) expired(e cacheEntry) bool {
	return c.now().Sub(e.storedAt) >= c.ttl
}

func cloneResults(results []model.Result) []model.Result {
	if results == nil {
		return nil
	}
	return append([]model.Result{}, results...)
}
