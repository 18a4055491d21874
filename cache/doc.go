// Package cache provides the caching contract and key building used by the
// back-office data access layer.
//
// # Overview
//
// The package exports two interfaces and their default implementations:
//
//   - CacheService: read-through caching with TTLs, insertion-order eviction,
//     regex invalidation and a background expiry sweep
//   - KeyBuilder: builds stable keys from a collection, a method name and
//     arguments
//
// # Basic Usage
//
//	svc, err := cache.New(cache.DefaultConfig(), logger)
//	if err != nil {
//		return err
//	}
//	keys := cache.NewKeyBuilder()
//
//	key := keys.Key("services", "FindByID", id)
//	value, err := cache.GetOrFetch(ctx, svc, key, 0, func(ctx context.Context) (*record.Service, error) {
//		return services.FindByID(ctx, id)
//	})
//
// After any write to a collection, invalidate its whole key space:
//
//	svc.InvalidatePattern(cache.Prefix("services"))
//
// # Failure semantics
//
// The cache is never a source of truth. When a fetch fails and a stale entry
// is still present, the stale value is returned and the fallback is logged;
// the error propagates only when there is nothing to fall back to. Cache
// state is lost on restart by design.
//
// # Key stability
//
// The default builder serializes basic types directly, slices and sorted maps
// recursively, and exported struct fields by name. Functions and channels are
// formatted by pointer, which is stable only within a single process; provide
// a custom KeyBuilder if keys must survive restarts or be shared across
// processes.
package cache
