package cache

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidResultType is returned by the generic GetOrFetch wrapper when the
// cached value cannot be asserted to the requested type. It indicates a key
// collision between callers using different types.
var ErrInvalidResultType = errors.New("cache: cached value has unexpected type")

// FetchFn is the function signature CacheService expects when fetching from
// the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService exposes the read-through caching operations shared by the data
// access layer and any other reader in the process.
//
// The contract every backend must honour:
//
//   - GetOrFetch returns the cached value while now - storedAt < ttl. On a
//     miss it invokes fetch, stores the result with the given ttl and returns
//     it. If fetch fails and a stale value is still present, the stale value
//     is returned instead of the error (availability over freshness); with no
//     cached value the error propagates.
//   - Set inserts or overwrites. At capacity the insertion-order-oldest entry
//     is evicted first.
//   - InvalidatePattern removes every entry whose key matches the regular
//     expression and reports how many were removed.
//   - The cache is never a source of truth: dropping any entry is always
//     safe, it only costs a refetch.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (any, error)) (any, error)
	Set(key string, value any, ttl time.Duration)
	Delete(key string) bool
	InvalidatePattern(pattern string) (int, error)
	Clear()
	Len() int

	// StartSweep launches the background expiry sweep. It returns once the
	// sweeper goroutine is running; the sweeper stops when ctx is cancelled.
	// Backends that sweep internally may treat this as a no-op.
	StartSweep(ctx context.Context)
}

// GetOrFetch is the type-safe wrapper around CacheService.GetOrFetch. A zero
// ttl selects the backend's default.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, ttl time.Duration, fetch FetchFn[T]) (T, error) {
	var zero T
	result, err := service.GetOrFetch(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, ErrInvalidResultType
	}
	return typed, nil
}
