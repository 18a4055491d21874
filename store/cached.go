package store

import (
	"context"
	"time"

	"github.com/activesoft/go-backoffice/cache"
	"github.com/activesoft/go-backoffice/record"
)

// Cached decorates a Store with read-through caching. Reads are keyed on the
// collection, the method and its arguments; writes pass through to the base
// store and drop the collection's whole key space so the next read refetches.
// Writes made elsewhere still reach this cache through the change events the
// base store publishes.
type Cached[T record.Record] struct {
	base *Store[T]
	svc  cache.CacheService
	keys cache.KeyBuilder
	ttl  time.Duration
}

// NewCached wraps base with the given cache service. A ttl <= 0 falls back to
// the service's default TTL.
func NewCached[T record.Record](base *Store[T], svc cache.CacheService, ttl time.Duration) *Cached[T] {
	return &Cached[T]{
		base: base,
		svc:  svc,
		keys: cache.NewKeyBuilder(),
		ttl:  ttl,
	}
}

// Base returns the undecorated store.
func (c *Cached[T]) Base() *Store[T] { return c.base }

// FindByID serves one record through the cache.
func (c *Cached[T]) FindByID(ctx context.Context, id string) (T, error) {
	key := c.keys.Key(c.base.table, "FindByID", id)
	return cache.GetOrFetch(ctx, c.svc, key, c.ttl, func(ctx context.Context) (T, error) {
		return c.base.FindByID(ctx, id)
	})
}

// FindMany serves one listing page through the cache. Every distinct
// ListOptions value gets its own key.
func (c *Cached[T]) FindMany(ctx context.Context, opts ListOptions) (Page[T], error) {
	key := c.keys.Key(c.base.table, "FindMany", opts)
	return cache.GetOrFetch(ctx, c.svc, key, c.ttl, func(ctx context.Context) (Page[T], error) {
		return c.base.FindMany(ctx, opts)
	})
}

// Create inserts through the base store and invalidates the collection.
func (c *Cached[T]) Create(ctx context.Context, rec T) (T, error) {
	created, err := c.base.Create(ctx, rec)
	if err == nil {
		c.invalidate()
	}
	return created, err
}

// Update patches through the base store and invalidates the collection.
func (c *Cached[T]) Update(ctx context.Context, id string, patch map[string]any) (T, error) {
	updated, err := c.base.Update(ctx, id, patch)
	if err == nil {
		c.invalidate()
	}
	return updated, err
}

// Delete removes through the base store and invalidates the collection.
func (c *Cached[T]) Delete(ctx context.Context, id string) error {
	err := c.base.Delete(ctx, id)
	if err == nil {
		c.invalidate()
	}
	return err
}

// BulkCreate inserts through the base store and invalidates the collection.
func (c *Cached[T]) BulkCreate(ctx context.Context, recs []T) ([]T, error) {
	created, err := c.base.BulkCreate(ctx, recs)
	if err == nil && len(created) > 0 {
		c.invalidate()
	}
	return created, err
}

// BulkDelete removes through the base store and invalidates the collection.
func (c *Cached[T]) BulkDelete(ctx context.Context, ids []string) (int, error) {
	deleted, err := c.base.BulkDelete(ctx, ids)
	if err == nil && deleted > 0 {
		c.invalidate()
	}
	return deleted, err
}

// invalidate drops every cached read for the collection. Write paths call it
// directly so reads through this decorator never trail the asynchronous bus
// subscriber.
func (c *Cached[T]) invalidate() {
	if _, err := c.svc.InvalidatePattern(cache.Prefix(c.base.table)); err != nil {
		c.base.logger.Warn("cache invalidation failed", "error", err)
	}
}
