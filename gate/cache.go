package gate

import (
	"container/list"
	"sync"
	"time"
)

const (
	paymentCacheCapacity = 1000
	paymentCacheTTL      = 600_000 * time.Millisecond
)

// paymentCacheEntry is the value stored per agent key: always true per the
// spec (absence is what encodes "not yet verified"), timestamped for TTL
// and carrying its own list.Element for O(1) FIFO removal.
type paymentCacheEntry struct {
	insertedAt time.Time
	elem       *list.Element
}

// PaymentCache records agent keys that have been verified paid. get is a
// pure read: it never mutates eviction order, even on a hit, so only set
// (an insert or a refresh of an existing key) can change which entry is
// oldest. Capacity is bounded at paymentCacheCapacity; past capacity the
// oldest entry by insertion time is evicted first (FIFO), not by recency
// of read — this is the property that rules out a recency-promoting LRU
// cache as a drop-in replacement.
type PaymentCache struct {
	mu      sync.Mutex
	entries map[string]*paymentCacheEntry
	order   *list.List // front = oldest
	now     func() time.Time
}

// NewPaymentCache constructs an empty PaymentCache.
func NewPaymentCache() *PaymentCache {
	return &PaymentCache{
		entries: make(map[string]*paymentCacheEntry),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns true if key was verified paid and the entry has not expired.
// Absence (false) covers both "never inserted" and "inserted but stale" —
// a stale entry is lazily dropped on read but its absence from the return
// value is observationally identical either way.
func (c *PaymentCache) Get(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().Sub(e.insertedAt) > paymentCacheTTL {
		c.removeLocked(key, e)
		return false
	}
	return true
}

// Set records key as verified paid, refreshing its timestamp and its FIFO
// position if it already existed, and evicting the oldest entry if this
// insert would exceed capacity.
func (c *PaymentCache) Set(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.order.Remove(e.elem)
		e.insertedAt = c.now()
		e.elem = c.order.PushBack(key)
		return
	}

	if len(c.entries) >= paymentCacheCapacity {
		oldest := c.order.Front()
		if oldest != nil {
			oldestKey := oldest.Value.(string)
			c.removeLocked(oldestKey, c.entries[oldestKey])
		}
	}

	elem := c.order.PushBack(key)
	c.entries[key] = &paymentCacheEntry{insertedAt: c.now(), elem: elem}
}

// removeLocked deletes key from both the map and the order list. Caller
// must hold c.mu.
func (c *PaymentCache) removeLocked(key string, e *paymentCacheEntry) {
	if e != nil && e.elem != nil {
		c.order.Remove(e.elem)
	}
	delete(c.entries, key)
}
