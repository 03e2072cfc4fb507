package schemas

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/dyluth/muster/pkg/redact"
)

// CachedProvider wraps a SchemaProvider with a Ristretto cache.
// Only successful lookups are cached; an unavailable schema is asked for
// again on the next call so that a restored owner is picked up.
type CachedProvider struct {
	next  redact.SchemaProvider
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCachedProvider creates a cache in front of next.
func NewCachedProvider(next redact.SchemaProvider, ttl time.Duration) (*CachedProvider, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schema cache: %w", err)
	}
	return &CachedProvider{next: next, cache: cache, ttl: ttl}, nil
}

// ActionSchema implements redact.SchemaProvider.
func (c *CachedProvider) ActionSchema(ctx context.Context, ref string) (redact.SecretSchema, error) {
	return c.get(ctx, "action:"+ref, ref, c.next.ActionSchema)
}

// ActionRunner implements redact.SchemaProvider.
func (c *CachedProvider) ActionRunner(ctx context.Context, ref string) (string, error) {
	key := "owner:" + ref
	if v, found := c.cache.Get(key); found {
		return v.(string), nil
	}

	name, err := c.next.ActionRunner(ctx, ref)
	if err != nil {
		return "", err
	}

	c.cache.SetWithTTL(key, name, 1, c.ttl)
	c.cache.Wait()
	return name, nil
}

// RunnerSchema implements redact.SchemaProvider.
func (c *CachedProvider) RunnerSchema(ctx context.Context, name string) (redact.SecretSchema, error) {
	return c.get(ctx, "runner:"+name, name, c.next.RunnerSchema)
}

// ConfigSchema implements redact.SchemaProvider.
func (c *CachedProvider) ConfigSchema(ctx context.Context, pack string) (redact.SecretSchema, error) {
	return c.get(ctx, "config:"+pack, pack, c.next.ConfigSchema)
}

// Close releases the cache's background goroutines.
func (c *CachedProvider) Close() {
	c.cache.Close()
}

func (c *CachedProvider) get(ctx context.Context, key, ref string, load func(context.Context, string) (redact.SecretSchema, error)) (redact.SecretSchema, error) {
	if v, found := c.cache.Get(key); found {
		return v.(redact.SecretSchema), nil
	}

	schema, err := load(ctx, ref)
	if err != nil {
		return nil, err
	}

	c.cache.SetWithTTL(key, schema, 1, c.ttl)
	c.cache.Wait()
	return schema, nil
}
