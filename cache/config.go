package cache

import (
	"log/slog"
	"time"

	"github.com/activesoft/go-backoffice/internal/cacheinfra"
)

// Backend selects the cache implementation.
type Backend string

const (
	// BackendMemory is the default TTL store with insertion-order eviction,
	// stale fallback and regex invalidation.
	BackendMemory Backend = "memory"
	// BackendSturdyc is a sharded, stampede-protected alternative for plain
	// read-through use. Per-call TTLs are ignored; entries use the client
	// TTL, and there is no stale fallback.
	BackendSturdyc Backend = "sturdyc"
)

// Config exposes cache configuration options for consumers of the package.
type Config struct {
	Backend Backend

	// Capacity is the maximum number of entries. Default 1000.
	Capacity int

	// DefaultTTL applies when a caller passes a zero ttl. Default 5 minutes.
	DefaultTTL time.Duration

	// CleanupInterval is how often the background sweep evicts expired
	// entries. Default 10 minutes.
	CleanupInterval time.Duration

	// NumShards is only used by the sturdyc backend. Default 64.
	NumShards int
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return fromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// New constructs the cache service selected by the configuration.
func New(cfg Config, logger *slog.Logger) (CacheService, error) {
	internal := cfg.toInternal()
	if cfg.Backend == BackendSturdyc {
		return cacheinfra.NewSturdycStore(internal, logger)
	}
	return cacheinfra.NewMemoryStore(internal, logger)
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:        c.Capacity,
		DefaultTTL:      c.DefaultTTL,
		CleanupInterval: c.CleanupInterval,
		NumShards:       c.NumShards,
	}
}

func fromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Backend:         BackendMemory,
		Capacity:        cfg.Capacity,
		DefaultTTL:      cfg.DefaultTTL,
		CleanupInterval: cfg.CleanupInterval,
		NumShards:       cfg.NumShards,
	}
}
