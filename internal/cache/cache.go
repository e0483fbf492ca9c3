// Package cache short-circuits repeated questions with a bounded in-memory
// response cache.
//
// Entries die two ways: LRU pressure when the cache is at capacity, or
// per-entry TTL expiry, whichever comes first. Expiry is checked lazily on
// Get; an expired entry counts as a miss and is removed on the spot.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTTL bounds how long a cached answer stays fresh.
const DefaultTTL = 30 * time.Minute

// DefaultCapacity bounds how many answers are kept.
const DefaultCapacity = 1000

// Stats is a point-in-time snapshot of cache accounting.
type Stats struct {
	Size          int     `json:"size"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
	TotalRequests int64   `json:"total_requests"`
}

// entry is one cached answer. The element's recency lives in the list.
type entry struct {
	key       string
	value     string
	expiresAt time.Time
}

// Response is an LRU response cache with per-entry TTL.
// Safe for concurrent use; a single mutex guards all state so eviction is
// atomic with insertion.
type Response struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recently used
	items    map[string]*list.Element
	hits     int64
	misses   int64

	// now is swappable in tests.
	now func() time.Time
}

// NewResponse creates a response cache. Non-positive capacity or TTL fall
// back to the defaults.
func NewResponse(capacity int, ttl time.Duration) *Response {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Response{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

// Key derives a deterministic cache key from the question and its context.
// The question is case-insensitive and whitespace-trimmed; context fields
// are order-independent but value-sensitive, so two requests differing only
// in context never collide.
func Key(question string, context map[string]string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(question))))

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte{0})
			h.Write([]byte(k))
			h.Write([]byte{0})
			h.Write([]byte(context[k]))
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached value for key and whether it was present. A hit
// refreshes recency; an expired or absent entry is a miss.
func (c *Response) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return "", false
	}

	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.remove(el)
		c.misses++
		return "", false
	}

	c.order.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Set inserts or overwrites the value for key. Inserting at capacity
// evicts exactly enough least-recently-used entries to make room.
func (c *Response) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest)
	}

	el := c.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el
}

// Invalidate removes a single entry if present.
func (c *Response) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
}

// Clear drops every entry. Hit/miss counters are preserved: they describe
// request history, not current contents.
func (c *Response) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element, c.capacity)
}

// Stats returns a snapshot of cache accounting. HitRate is 0.0 when no
// requests have been served.
func (c *Response) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}

	return Stats{
		Size:          c.order.Len(),
		Hits:          c.hits,
		Misses:        c.misses,
		HitRate:       rate,
		TotalRequests: total,
	}
}

// remove unlinks an element from both structures. Caller holds the lock.
func (c *Response) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}
