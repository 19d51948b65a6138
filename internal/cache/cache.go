// Package cache implements the ContentCache component (C1): a bounded,
// TTL-indexed, true-LRU key→blob store used by the Distiller and Embedder.
// Grounded on internal/store's SQLite table-init pattern for the optional
// persistent tier and the Cache/CacheStore interface shapes surveyed in
// _examples/other_examples' embedding-cache reference file.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats summarizes cache activity, returned by Cache.Stats.
type Stats struct {
	Size        int
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
}

// entry is the value stored per cache key.
type entry struct {
	key            string
	payload        []byte
	expiresAt      time.Time
	lastAccessedAt time.Time
	hitCount       int64
}

// Cache is a bounded, TTL-indexed, true-LRU key→blob store. Safe for
// concurrent get/set; entries are copied in and out so callers can never
// mutate cache-internal state.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element // key -> list element holding *entry
	order   *list.List               // front = most recently accessed

	stats Stats

	cleanupInterval time.Duration
	stopOnce        sync.Once
	stopCh          chan struct{}
}

// New constructs a Cache with the given maximum entry count. If
// cleanupInterval > 0 a background goroutine sweeps expired entries on
// that period; call Close to stop it.
func New(maxSize int, cleanupInterval time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		maxSize:         maxSize,
		items:           make(map[string]*list.Element),
		order:           list.New(),
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.sweepLoop()
	}
	return c
}

// Close stops the background sweep goroutine, if running.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) sweepExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, el := range c.items {
		e := el.Value.(*entry)
		if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
			c.order.Remove(el)
			delete(c.items, k)
			c.stats.Expirations++
		}
	}
}

// Get returns a copy of the payload for key, or (nil, false) if absent or
// expired. A hit updates lastAccessedAt and hitCount.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if !e.expiresAt.IsZero() && !e.expiresAt.After(time.Now()) {
		c.order.Remove(el)
		delete(c.items, key)
		c.stats.Expirations++
		c.stats.Misses++
		return nil, false
	}

	e.lastAccessedAt = time.Now()
	e.hitCount++
	c.order.MoveToFront(el)
	c.stats.Hits++

	out := make([]byte, len(e.payload))
	copy(out, e.payload)
	return out, true
}

// Set stores payload under key with the given ttl (zero means never
// expires). If the cache is at maxSize on insert of a new key, the entry
// with the oldest lastAccessedAt is evicted.
func (c *Cache) Set(key string, payload []byte, ttl time.Duration) {
	stored := make([]byte, len(payload))
	copy(stored, payload)

	now := time.Now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.payload = stored
		e.expiresAt = expiresAt
		e.lastAccessedAt = now
		c.order.MoveToFront(el)
		return
	}

	if len(c.items) >= c.maxSize {
		c.evictOldest()
	}

	e := &entry{key: key, payload: stored, expiresAt: expiresAt, lastAccessedAt: now}
	el := c.order.PushFront(e)
	c.items[key] = el
}

// evictOldest removes the entry with the oldest lastAccessedAt (true LRU,
// not insertion-order LRU). Caller must hold c.mu.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestEl *list.Element
	var oldestAt time.Time

	for k, el := range c.items {
		e := el.Value.(*entry)
		if oldestEl == nil || e.lastAccessedAt.Before(oldestAt) {
			oldestKey = k
			oldestEl = el
			oldestAt = e.lastAccessedAt
		}
	}
	if oldestEl != nil {
		c.order.Remove(oldestEl)
		delete(c.items, oldestKey)
		c.stats.Evictions++
	}
}

// Has reports whether key is present and unexpired, without affecting LRU
// order or hit counts.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return false
	}
	e := el.Value.(*entry)
	return e.expiresAt.IsZero() || e.expiresAt.After(time.Now())
}

// Delete removes key unconditionally. Absence is not an error.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
}

// Size returns the current entry count, including entries not yet swept
// past their expiry.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of cache activity counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.items)
	return s
}
