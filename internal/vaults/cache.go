package vaults

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache stores computed summaries between refreshes.
type Cache interface {
	Get(ctx context.Context, addr string) (Summary, bool, error)
	Put(ctx context.Context, summaries []Summary) error
	List(ctx context.Context) ([]Summary, bool, error)
}

func cacheKey(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// =============================================================================
// Memory Cache
// =============================================================================

type memoryEntry struct {
	summary Summary
	expires time.Time
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
	order   []string
	listAt  time.Time
}

// NewMemoryCache creates a cache whose entries expire after ttl. A zero ttl never expires.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) expired(t time.Time) bool {
	return c.ttl > 0 && c.now().After(t)
}

// Get returns the cached summary of addr.
func (c *MemoryCache) Get(_ context.Context, addr string) (Summary, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey(addr)]
	if !ok || c.expired(e.expires) {
		return Summary{}, false, nil
	}
	return e.summary, true, nil
}

// Put stores summaries and replaces the cached listing.
func (c *MemoryCache) Put(_ context.Context, summaries []Summary) error {
	expires := c.now().Add(c.ttl)
	order := make([]string, 0, len(summaries))

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range summaries {
		key := cacheKey(s.Address)
		c.entries[key] = memoryEntry{summary: s, expires: expires}
		order = append(order, key)
	}
	c.order = order
	c.listAt = expires
	return nil
}

// List returns the cached listing.
func (c *MemoryCache) List(_ context.Context) ([]Summary, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.order == nil || c.expired(c.listAt) {
		return nil, false, nil
	}
	out := make([]Summary, 0, len(c.order))
	for _, key := range c.order {
		e, ok := c.entries[key]
		if !ok {
			return nil, false, nil
		}
		out = append(out, e.summary)
	}
	return out, true, nil
}

// =============================================================================
// Redis Cache
// =============================================================================

// RedisCache stores summaries in Redis so several portal replicas share one refresh.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "vault_portal"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) vaultKey(addr string) string {
	return fmt.Sprintf("%s:vault:%s", c.prefix, cacheKey(addr))
}

func (c *RedisCache) listKey() string {
	return c.prefix + ":vaults"
}

// Get returns the cached summary of addr.
func (c *RedisCache) Get(ctx context.Context, addr string) (Summary, bool, error) {
	raw, err := c.client.Get(ctx, c.vaultKey(addr)).Bytes()
	if err == redis.Nil {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, fmt.Errorf("redis get: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return Summary{}, false, fmt.Errorf("decode cached summary: %w", err)
	}
	return s, true, nil
}

// Put stores summaries and the listing in one pipeline.
func (c *RedisCache) Put(ctx context.Context, summaries []Summary) error {
	list, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("encode summaries: %w", err)
	}

	pipe := c.client.TxPipeline()
	for _, s := range summaries {
		raw, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		pipe.Set(ctx, c.vaultKey(s.Address), raw, c.ttl)
	}
	pipe.Set(ctx, c.listKey(), list, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

// List returns the cached listing.
func (c *RedisCache) List(ctx context.Context) ([]Summary, bool, error) {
	raw, err := c.client.Get(ctx, c.listKey()).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var out []Summary
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("decode cached summaries: %w", err)
	}
	return out, true, nil
}
