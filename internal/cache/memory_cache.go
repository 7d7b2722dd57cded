// Package cache provides the plan cache: classification and planning for a
// repeated request text are skipped by replaying the cached plan.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// entry is a cached value with its absolute expiry, kept as a monotonic-ish
// UnixNano so comparison stays a plain int64.
type entry struct {
	value     interface{}
	expiresAt int64
}

func (e entry) expired(now int64) bool {
	return now > e.expiresAt
}

// Stats reports cache effectiveness counters since construction.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
}

// InMemoryCache keeps plans in process memory with per-entry expiry. Expired
// entries are dropped lazily on read and swept by a background janitor.
type InMemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
	hits       uint64
	misses     uint64
	evictions  uint64
	stop       chan struct{}
	stopOnce   sync.Once
}

const janitorInterval = 10 * time.Minute

// NewInMemoryCache creates an in-memory cache whose Set calls use defaultTTL.
func NewInMemoryCache(defaultTTL time.Duration) *InMemoryCache {
	c := &InMemoryCache{
		entries:    make(map[string]entry),
		defaultTTL: defaultTTL,
		stop:       make(chan struct{}),
	}
	go c.janitor(janitorInterval)
	return c
}

// Get retrieves an item, treating an expired entry as a miss and dropping it.
func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, errbuilder.WrapIfContextDone(ctx, err)
	}

	c.mu.RLock()
	e, found := c.entries[key]
	c.mu.RUnlock()

	now := time.Now().UnixNano()
	if found && !e.expired(now) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return e.value, nil
	}

	c.mu.Lock()
	c.misses++
	if found {
		// Re-check under the write lock so a concurrent Set is not clobbered.
		if cur, ok := c.entries[key]; ok && cur.expired(now) {
			delete(c.entries, key)
			c.evictions++
		}
	}
	c.mu.Unlock()

	if found {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item expired", nil))
	}
	return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item not found", nil))
}

// Set stores an item under the cache's default TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.defaultTTL)
}

// SetWithTTL stores an item with an explicit TTL, overriding the default.
func (c *InMemoryCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return errbuilder.WrapIfContextDone(ctx, err)
	}

	c.mu.Lock()
	c.entries[key] = entry{
		value:     value,
		expiresAt: time.Now().Add(ttl).UnixNano(),
	}
	c.mu.Unlock()
	return nil
}

// Delete removes an item. Deleting an absent key is not an error.
func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return errbuilder.WrapIfContextDone(ctx, err)
	}

	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Stats returns a snapshot of the hit, miss, and eviction counters.
func (c *InMemoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
	}
}

// Stop terminates the janitor goroutine. Safe to call more than once.
func (c *InMemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// janitor sweeps expired entries on a fixed interval until Stop is called.
func (c *InMemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now().UnixNano()
			c.mu.Lock()
			for key, e := range c.entries {
				if e.expired(now) {
					delete(c.entries, key)
					c.evictions++
				}
			}
			c.mu.Unlock()
		}
	}
}
