// Package memory implements the response cache in process memory. It is the
// backend used when Redis is not configured and by tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

type entry struct {
	value     []byte
	expiresAt time.Time
	tier      domain.CacheTier
}

// Cache is a mutex-guarded map with lazy expiry: an expired entry reads as a
// miss and is dropped on lookup.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttls    domain.CacheTTLs
	now     func() time.Time
}

// New creates a Cache with the given tier TTLs.
func New(ttls domain.CacheTTLs) *Cache {
	if ttls.Short <= 0 {
		ttls = domain.DefaultCacheTTLs()
	}
	return &Cache{
		entries: make(map[string]entry),
		ttls:    ttls,
		now:     time.Now,
	}
}

// Get implements domain.ResponseCache.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have renewed it.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements domain.ResponseCache.
func (c *Cache) Set(_ context.Context, key string, value []byte, tier domain.CacheTier) error {
	c.mu.Lock()
	c.entries[key] = entry{
		value:     value,
		expiresAt: c.now().Add(c.ttls.For(tier)),
		tier:      tier,
	}
	c.mu.Unlock()
	return nil
}

// Invalidate implements domain.ResponseCache.
func (c *Cache) Invalidate(_ context.Context, prefix string) error {
	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
	return nil
}

// Len returns the number of live entries, counting out expired ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	now := c.now()
	for _, e := range c.entries {
		if !now.After(e.expiresAt) {
			n++
		}
	}
	return n
}

// Compile-time interface check.
var _ domain.ResponseCache = (*Cache)(nil)
