package resolver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nsproc/rpcgateway/internal/catalog"
)

// cacheEntry is a single insert-only cache record: once written for a key
// it is never mutated, only (optionally) evicted once its TTL has passed,
// either by the sweep or by the lookup that finds it expired. ttl==0
// means the entry never expires — the default, matching a cache whose
// lifetime is the process's own lifetime.
type cacheEntry struct {
	match      catalog.Match
	insertedAt time.Time
	ttl        time.Duration
}

func (e cacheEntry) expired(now time.Time) bool {
	if e.ttl <= 0 {
		return false
	}
	return now.Sub(e.insertedAt) > e.ttl
}

// resolveCache is a sync.Map-backed, insert-only cache: Resolve's
// per-(method, argset) entry is a pure function of its key, so two
// concurrent misses computing the same key race harmlessly — whichever
// write lands first is kept, via LoadOrStore.
type resolveCache struct {
	entries sync.Map // string -> cacheEntry
	ttl     time.Duration
	hits    int64
	misses  int64
}

func newResolveCache(ttl time.Duration) *resolveCache {
	return &resolveCache{ttl: ttl}
}

func (c *resolveCache) get(key string) (catalog.Match, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return catalog.Match{}, false
	}
	entry := v.(cacheEntry)
	if entry.expired(time.Now()) {
		c.entries.Delete(key)
		atomic.AddInt64(&c.misses, 1)
		return catalog.Match{}, false
	}
	atomic.AddInt64(&c.hits, 1)
	return entry.match, true
}

// size counts live entries, an O(n) walk acceptable for the admin
// introspection endpoint's occasional polling.
func (c *resolveCache) size() int {
	n := 0
	c.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// putIfAbsent stores match under key unless an entry is already present,
// returning the entry that ends up live under that key (the caller's if
// it won the race, or the existing winner's otherwise). Both are
// equivalent results of the same deterministic lookup, so either is safe
// to use.
func (c *resolveCache) putIfAbsent(key string, match catalog.Match) catalog.Match {
	entry := cacheEntry{match: match, insertedAt: time.Now(), ttl: c.ttl}
	actual, _ := c.entries.LoadOrStore(key, entry)
	return actual.(cacheEntry).match
}

// sweep removes every expired entry. Called periodically by an optional
// cron schedule when a non-zero TTL is configured; a no-op when ttl==0.
func (c *resolveCache) sweep() {
	if c.ttl <= 0 {
		return
	}
	now := time.Now()
	c.entries.Range(func(key, value interface{}) bool {
		if value.(cacheEntry).expired(now) {
			c.entries.Delete(key)
		}
		return true
	})
}
