package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maauso/mediagen/internal/generation"
)

// ResultCache remembers delivered assets by idempotency key.
type ResultCache interface {
	// Get returns the asset stored under key, if any.
	Get(ctx context.Context, key string) (generation.DeliveredAsset, bool)
	// Set stores asset under key.
	Set(ctx context.Context, key string, asset generation.DeliveredAsset)
}

// RedisResultCache stores delivered assets in Redis with a TTL. Cache
// failures are logged and treated as misses.
type RedisResultCache struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

var _ ResultCache = (*RedisResultCache)(nil)

// NewRedisResultCache creates a Redis-backed result cache.
func NewRedisResultCache(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *RedisResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisResultCache{client: client, ttl: ttl, logger: logger}
}

// Get implements ResultCache.
func (c *RedisResultCache) Get(ctx context.Context, key string) (generation.DeliveredAsset, bool) {
	if key == "" {
		return generation.DeliveredAsset{}, false
	}
	data, err := c.client.Get(ctx, resultKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("idempotency cache read failed", slog.String("error", err.Error()))
		}
		return generation.DeliveredAsset{}, false
	}
	var asset generation.DeliveredAsset
	if err := json.Unmarshal(data, &asset); err != nil || asset.URI == "" {
		return generation.DeliveredAsset{}, false
	}
	return asset, true
}

// Set implements ResultCache.
func (c *RedisResultCache) Set(ctx context.Context, key string, asset generation.DeliveredAsset) {
	if key == "" || asset.URI == "" {
		return
	}
	data, err := json.Marshal(asset)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, resultKeyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("idempotency cache write failed", slog.String("error", err.Error()))
	}
}

// MemoryResultCache is an in-process ResultCache with per-entry expiry.
type MemoryResultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cachedResult
}

type cachedResult struct {
	asset   generation.DeliveredAsset
	expires time.Time
}

var _ ResultCache = (*MemoryResultCache)(nil)

// NewMemoryResultCache creates an in-memory result cache.
func NewMemoryResultCache(ttl time.Duration) *MemoryResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryResultCache{ttl: ttl, now: time.Now, entries: make(map[string]cachedResult)}
}

// Get implements ResultCache.
func (c *MemoryResultCache) Get(_ context.Context, key string) (generation.DeliveredAsset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return generation.DeliveredAsset{}, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return generation.DeliveredAsset{}, false
	}
	return e.asset, true
}

// Set implements ResultCache.
func (c *MemoryResultCache) Set(_ context.Context, key string, asset generation.DeliveredAsset) {
	if key == "" || asset.URI == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedResult{asset: asset, expires: c.now().Add(c.ttl)}
}
