package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/scrapepal/models"
)

// maxEntryAge is the hard expiry applied by the cleanup sweep regardless of
// what max_age callers ask for.
const maxEntryAge = time.Hour

// entry holds a cached result with its creation timestamp.
type entry struct {
	result    *models.ScrapeResult
	createdAt time.Time
}

// Cache is a bounded in-memory cache of successful scrape results.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	now        func() time.Time
	done       chan struct{}
	once       sync.Once
}

// New creates a Cache holding at most maxEntries results. A background
// goroutine evicts entries older than an hour every 5 minutes.
func New(maxEntries int) *Cache {
	c := newCache(maxEntries, time.Now)
	go c.cleanupLoop(5 * time.Minute)
	return c
}

func newCache(maxEntries int, now func() time.Time) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		now:        now,
		done:       make(chan struct{}),
	}
}

// Key derives the cache key from everything that changes a result:
// URL, mode, CSS selector and exclusions.
func Key(url string, mode models.Mode, selector string, exclude []string) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(mode))
	h.Write([]byte("|"))
	h.Write([]byte(selector))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(exclude, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached result if it is younger than maxAge.
// A non-positive maxAge never hits.
func (c *Cache) Get(key string, maxAge time.Duration) (*models.ScrapeResult, bool) {
	if maxAge <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}

	cp := *e.result
	return &cp, true
}

// Set stores a successful result. Failures are ignored. At capacity the
// oldest entry is evicted.
func (c *Cache) Set(key string, result *models.ScrapeResult) {
	if result == nil || !result.Success {
		return
	}
	cp := *result

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.store[key] = &entry{result: &cp, createdAt: c.now()}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop terminates the cleanup goroutine.
func (c *Cache) Stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.store {
		if oldestKey == "" || e.createdAt.Before(oldest) {
			oldestKey, oldest = k, e.createdAt
		}
	}
	delete(c.store, oldestKey)
}

// sweep evicts entries older than maxEntryAge.
func (c *Cache) sweep() {
	cutoff := c.now().Add(-maxEntryAge)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}

func (c *Cache) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}
