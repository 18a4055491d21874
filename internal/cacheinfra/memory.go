package cacheinfra

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// entry is a single cached value. An entry is logically absent once
// now - storedAt >= ttl, even while it is still physically present waiting
// for the sweep.
type entry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
	seq      uint64
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) >= e.ttl
}

// MemoryStore is the default cache backend: a TTL store with insertion-order
// eviction at capacity, stale fallback on fetch failure, regex invalidation
// and a periodic expiry sweep.
type MemoryStore struct {
	entries *xsync.MapOf[string, *entry]
	seq     atomic.Uint64

	// mu serializes Set so the capacity check and the eviction it may
	// trigger act on a consistent size.
	mu sync.Mutex

	capacity        int
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	logger          *slog.Logger
}

// NewMemoryStore validates cfg and builds a MemoryStore. The expiry sweep is
// not started here; call StartSweep with a lifecycle context.
func NewMemoryStore(cfg Config, logger *slog.Logger) (*MemoryStore, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		entries:         xsync.NewMapOf[string, *entry](),
		capacity:        cfg.Capacity,
		defaultTTL:      cfg.DefaultTTL,
		cleanupInterval: cfg.CleanupInterval,
		logger:          logger.With("component", "cache"),
	}, nil
}

// GetOrFetch returns the cached value while it is fresh, otherwise invokes
// fetch and stores the result. A failed fetch falls back to a stale value
// when one is present; the error propagates only when there is nothing to
// fall back to.
func (s *MemoryStore) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (any, error)) (any, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	if e, ok := s.entries.Load(key); ok && !e.expired(time.Now()) {
		return e.value, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		if e, ok := s.entries.Load(key); ok {
			s.logger.Warn("fetch failed, serving stale entry", "key", key, "error", err)
			return e.value, nil
		}
		return nil, err
	}

	s.Set(key, value, ttl)
	return value, nil
}

// Set inserts or overwrites an entry. When inserting a new key at capacity,
// the insertion-order-oldest entry is evicted first so the size never
// exceeds the configured capacity.
func (s *MemoryStore) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries.Load(key); !exists && s.entries.Size() >= s.capacity {
		s.evictOldest()
	}
	s.entries.Store(key, &entry{
		value:    value,
		storedAt: time.Now(),
		ttl:      ttl,
		seq:      s.seq.Add(1),
	})
}

// evictOldest removes the entry with the smallest insertion sequence.
// Callers must hold mu.
func (s *MemoryStore) evictOldest() {
	var (
		oldestKey string
		oldestSeq uint64
		found     bool
	)
	s.entries.Range(func(k string, e *entry) bool {
		if !found || e.seq < oldestSeq {
			oldestKey, oldestSeq, found = k, e.seq, true
		}
		return true
	})
	if found {
		s.entries.Delete(oldestKey)
		s.logger.Debug("evicted oldest entry", "key", oldestKey)
	}
}

// Delete removes one entry and reports whether it existed.
func (s *MemoryStore) Delete(key string) bool {
	_, existed := s.entries.LoadAndDelete(key)
	return existed
}

// InvalidatePattern removes every entry whose key matches the regular
// expression and returns how many were removed.
func (s *MemoryStore) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, err
	}

	removed := 0
	s.entries.Range(func(k string, _ *entry) bool {
		if re.MatchString(k) {
			if _, existed := s.entries.LoadAndDelete(k); existed {
				removed++
			}
		}
		return true
	})
	return removed, nil
}

// Clear removes all entries.
func (s *MemoryStore) Clear() {
	s.entries.Clear()
}

// Len reports the number of physically present entries, expired or not.
func (s *MemoryStore) Len() int {
	return s.entries.Size()
}

// StartSweep launches the periodic expiry sweep. The sweeper stops when ctx
// is cancelled.
func (s *MemoryStore) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *MemoryStore) sweep() {
	now := time.Now()
	removed := 0
	s.entries.Range(func(k string, e *entry) bool {
		if e.expired(now) {
			if _, existed := s.entries.LoadAndDelete(k); existed {
				removed++
			}
		}
		return true
	})
	if removed > 0 {
		s.logger.Debug("sweep evicted expired entries", "count", removed)
	}
}
