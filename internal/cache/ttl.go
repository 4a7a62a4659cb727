// Package cache provides a bounded in-memory cache with per-entry expiry.
package cache

import (
	"sync"
	"time"
)

// Default lifetimes.
const (
	TTLRanking = 10 * time.Minute
	TTLPrice   = 10 * time.Minute
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
	insertSeq uint64
}

// TTL is a map bounded to maxEntries whose entries expire after ttl. Expiry is
// checked on read; a full cache evicts expired entries first, then the oldest.
// Construct one per consumer and pass it along.
type TTL[K comparable, V any] struct {
	mu         sync.Mutex
	entries    map[K]entry[V]
	ttl        time.Duration
	maxEntries int
	seq        uint64
	now        func() time.Time
}

// NewTTL returns an empty cache. maxEntries <= 0 means 1024.
func NewTTL[K comparable, V any](ttl time.Duration, maxEntries int) *TTL[K, V] {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &TTL[K, V]{
		entries:    make(map[K]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the live value for key.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.seq++
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl), insertSeq: c.seq}
}

// Delete removes key.
func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge removes every entry.
func (c *TTL[K, V]) Purge() {
	c.mu.Lock()
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
}

// Len counts stored entries, expired ones included until they are read or evicted.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TTL[K, V]) evictLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	var (
		oldestKey K
		oldestSeq uint64
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.insertSeq < oldestSeq {
			oldestKey, oldestSeq, found = k, e.insertSeq, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
