package cache

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-wallet-provisioning/core"
)

const hardwareIDCacheKeyPrefix = "go-wallet-provisioning::hardware_id::v1"

// HardwareIDCache memoizes the stable hardware id read-through. Failed
// fetches are not stored, so the next call asks the wallet again.
type HardwareIDCache struct {
	cache repositorycache.CacheService
	key   string
}

// NewCacheService builds a go-repository-cache service with the given TTL.
// A zero TTL keeps the library default.
func NewCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	return repositorycache.NewCacheService(config)
}

// NewHardwareIDCache scopes entries by deviceScope, typically the wallet
// endpoint, so two clients sharing a cache service never see each other's id.
func NewHardwareIDCache(cacheService repositorycache.CacheService, deviceScope string) (*HardwareIDCache, error) {
	if cacheService == nil {
		return nil, fmt.Errorf("cache: hardware id cache service is required")
	}
	return &HardwareIDCache{cache: cacheService, key: HardwareIDCacheKey(deviceScope)}, nil
}

// HardwareIDCacheKey returns go-wallet-provisioning::hardware_id::v1::<scope>
// with the scope URL-path escaped. An empty scope maps to "default".
func HardwareIDCacheKey(deviceScope string) string {
	scope := strings.TrimSpace(strings.ToLower(deviceScope))
	if scope == "" {
		scope = "default"
	}
	return hardwareIDCacheKeyPrefix + "::" + url.PathEscape(scope)
}

func (c *HardwareIDCache) GetOrFetch(ctx context.Context, fetch func(context.Context) (string, error)) (string, error) {
	if c == nil || c.cache == nil {
		return "", fmt.Errorf("cache: hardware id cache is not configured")
	}
	if fetch == nil {
		return "", fmt.Errorf("cache: hardware id fetch function is required")
	}
	return repositorycache.GetOrFetch(ctx, c.cache, c.key, func(ctx context.Context) (string, error) {
		id, err := fetch(ctx)
		if err != nil {
			return "", err
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return "", fmt.Errorf("cache: wallet returned an empty hardware id")
		}
		return id, nil
	})
}

// Invalidate drops the cached id, e.g. after a device reset.
func (c *HardwareIDCache) Invalidate(ctx context.Context) error {
	if c == nil || c.cache == nil {
		return fmt.Errorf("cache: hardware id cache is not configured")
	}
	return c.cache.Delete(ctx, c.key)
}

var _ core.HardwareIDCache = (*HardwareIDCache)(nil)
