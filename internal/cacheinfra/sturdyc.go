package cacheinfra

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/viccon/sturdyc"
)

// SturdycStore adapts a sturdyc client to the CacheService contract. It is a
// sharded, stampede-protected alternative to MemoryStore for plain
// read-through workloads.
//
// Behavioural differences from MemoryStore, by construction of the
// underlying client: per-call TTLs are ignored in favour of the client TTL,
// eviction is per-shard rather than strict insertion order, expired entries
// are swept by the client itself, and there is no stale fallback on fetch
// failure.
type SturdycStore struct {
	client *sturdyc.Client[any]
	logger *slog.Logger
}

// NewSturdycStore validates cfg and initializes the sturdyc client.
// CleanupInterval maps onto the client's eviction interval.
func NewSturdycStore(cfg Config, logger *slog.Logger) (*SturdycStore, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.DefaultTTL,
		10, // evict 10% of a full shard
		sturdyc.WithEvictionInterval(cfg.CleanupInterval),
	)
	return &SturdycStore{
		client: client,
		logger: logger.With("component", "cache", "backend", "sturdyc"),
	}, nil
}

// GetOrFetch delegates to the sturdyc client. The ttl argument is accepted
// for interface compatibility but the client TTL wins.
func (s *SturdycStore) GetOrFetch(ctx context.Context, key string, _ time.Duration, fetch func(context.Context) (any, error)) (any, error) {
	return s.client.GetOrFetch(ctx, key, fetch)
}

// Set inserts or overwrites an entry with the client TTL.
func (s *SturdycStore) Set(key string, value any, _ time.Duration) {
	s.client.Set(key, value)
}

// Delete removes one entry and reports whether it existed.
func (s *SturdycStore) Delete(key string) bool {
	_, existed := s.client.Get(key)
	s.client.Delete(key)
	return existed
}

// InvalidatePattern scans the key space and deletes every match.
func (s *SturdycStore) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range s.client.ScanKeys() {
		if re.MatchString(key) {
			s.client.Delete(key)
			removed++
		}
	}
	return removed, nil
}

// Clear removes all entries.
func (s *SturdycStore) Clear() {
	for _, key := range s.client.ScanKeys() {
		s.client.Delete(key)
	}
}

// Len reports the number of entries currently stored.
func (s *SturdycStore) Len() int {
	return s.client.Size()
}

// StartSweep is a no-op; the sturdyc client runs its own eviction loop.
func (s *SturdycStore) StartSweep(context.Context) {}
