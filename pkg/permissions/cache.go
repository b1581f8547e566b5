package permissions

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dukex/blockflow/pkg/models"
)

const (
	DefaultTTL        = 60 * time.Second
	DefaultMaxEntries = 1000
)

// Cache memoizes resolved workspace permissions. Implementations report a miss on any
// internal failure; they never return an error to the gate.
type Cache interface {
	Get(ctx context.Context, key string) (models.Permission, bool)
	Set(ctx context.Context, key string, permission models.Permission)
	Delete(ctx context.Context, key string)
}

type memoryEntry struct {
	permission models.Permission
	expiresAt  time.Time
}

// MemoryCache is an in-process cache whose entries live for a fixed TTL. When the number
// of entries exceeds maxEntries, expired entries are dropped first and then the entries
// closest to expiry are evicted until the cache is back to 90% of its capacity.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// MemoryCacheOption configures a MemoryCache.
type MemoryCacheOption func(*MemoryCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) {
		c.now = now
	}
}

func NewMemoryCache(ttl time.Duration, maxEntries int, opts ...MemoryCacheOption) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	c := &MemoryCache{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) (models.Permission, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return models.PermissionNone, false
	}

	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)

		return models.PermissionNone, false
	}

	return entry.permission, true
}

func (c *MemoryCache) Set(_ context.Context, key string, permission models.Permission) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{
		permission: permission,
		expiresAt:  c.now().Add(c.ttl),
	}

	if len(c.entries) > c.maxEntries {
		c.evict()
	}
}

func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Sweep drops every expired entry and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.dropExpired()
}

func (c *MemoryCache) dropExpired() int {
	now := c.now()
	removed := 0

	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

// evict must be called with mu held.
func (c *MemoryCache) evict() {
	c.dropExpired()

	target := c.maxEntries * 9 / 10
	if len(c.entries) <= target {
		return
	}

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}

	slices.SortFunc(keys, func(a, b string) int {
		if byExpiry := c.entries[a].expiresAt.Compare(c.entries[b].expiresAt); byExpiry != 0 {
			return byExpiry
		}

		return cmp.Compare(a, b)
	})

	for _, key := range keys[:len(keys)-target] {
		delete(c.entries, key)
	}
}

// NoopCache never stores anything; every lookup goes to the repository.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (models.Permission, bool) {
	return models.PermissionNone, false
}

func (NoopCache) Set(context.Context, string, models.Permission) {}

func (NoopCache) Delete(context.Context, string) {}
