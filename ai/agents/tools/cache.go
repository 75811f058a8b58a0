// Package tools implements the content repurposing tasks and exposes them as
// agent tools.
package tools

import (
	"container/list"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// CacheKey identifies a task result by task name and input.
type CacheKey struct {
	Task      string
	InputHash uint64
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	return "task:" + k.Task + ":hash:" + strconv.FormatUint(k.InputHash, 16)
}

// NewCacheKey creates a CacheKey from a task name and its canonical input.
func NewCacheKey(task, input string) CacheKey {
	return CacheKey{Task: task, InputHash: xxhash.Sum64String(input)}
}

type cacheEntry struct {
	key        string
	task       string
	value      string
	expiration time.Time
}

// ResultCache is a per-run LRU cache of task outputs with per-task TTLs.
// Tasks without a TTL are never cached.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List
	maxEntries int
	ttl        map[string]time.Duration
	now        func() time.Time

	hits   map[string]int64
	misses map[string]int64
}

// NewResultCache creates a cache holding at most maxEntries results.
func NewResultCache(maxEntries int) *ResultCache {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	return &ResultCache{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
		ttl: map[string]time.Duration{
			// Key points depend only on the post.
			ToolExtractKeyPoints: 30 * time.Minute,
		},
		now:    time.Now,
		hits:   make(map[string]int64),
		misses: make(map[string]int64),
	}
}

// Get returns a cached, unexpired result.
func (c *ResultCache) Get(key CacheKey) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key.String()]
	if !ok {
		c.misses[key.Task]++
		return "", false
	}
	entry := elem.Value.(*cacheEntry) //nolint:errcheck // only *cacheEntry is stored
	if c.now().After(entry.expiration) {
		c.remove(elem)
		c.misses[key.Task]++
		return "", false
	}

	c.lru.MoveToFront(elem)
	c.hits[key.Task]++
	return entry.value, true
}

// Set stores a result if the task is cacheable.
func (c *ResultCache) Set(key CacheKey, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.ttl[key.Task]
	if ttl <= 0 {
		return
	}

	k := key.String()
	if elem, ok := c.entries[k]; ok {
		c.remove(elem)
	}
	c.entries[k] = c.lru.PushFront(&cacheEntry{
		key:        k,
		task:       key.Task,
		value:      value,
		expiration: c.now().Add(ttl),
	})
	if c.lru.Len() > c.maxEntries {
		c.remove(c.lru.Back())
	}

	slog.Debug("task result cached", "task", key.Task, "ttl_seconds", ttl.Seconds())
}

func (c *ResultCache) remove(elem *list.Element) {
	entry := elem.Value.(*cacheEntry) //nolint:errcheck // only *cacheEntry is stored
	delete(c.entries, entry.key)
	c.lru.Remove(elem)
}

// Size returns the current number of entries in the cache.
func (c *ResultCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// CacheStats represents cache statistics for one task.
type CacheStats struct {
	Task   string `json:"task"`
	Hits   int64  `json:"hits"`
	Misses int64  `json:"misses"`
}

// Stats returns hit and miss counts for every task seen.
func (c *ResultCache) Stats() map[string]CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]CacheStats)
	for task, n := range c.hits {
		s := out[task]
		s.Task, s.Hits = task, n
		out[task] = s
	}
	for task, n := range c.misses {
		s := out[task]
		s.Task, s.Misses = task, n
		out[task] = s
	}
	return out
}
