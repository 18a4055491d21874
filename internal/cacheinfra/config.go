package cacheinfra

import "time"

// Config holds the settings shared by the cache backends.
type Config struct {
	// Capacity is the maximum number of entries the cache can hold.
	// Must be greater than 0.
	Capacity int

	// DefaultTTL applies when a caller passes a zero ttl.
	// Must be greater than 0.
	DefaultTTL time.Duration

	// CleanupInterval is how often the background sweep scans for expired
	// entries. Must be greater than 0.
	CleanupInterval time.Duration

	// NumShards is used by the sturdyc backend only. Must be greater than 0.
	NumShards int
}

// DefaultConfig returns a Config with the defaults the back office runs with.
func DefaultConfig() Config {
	return Config{
		Capacity:        1000,
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: 10 * time.Minute,
		NumShards:       64,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.DefaultTTL <= 0 {
		return &ConfigError{Field: "DefaultTTL", Message: "must be greater than 0"}
	}
	if c.CleanupInterval <= 0 {
		return &ConfigError{Field: "CleanupInterval", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	return nil
}

// withDefaults fills zero values so callers can set only what they care about.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Capacity == 0 {
		c.Capacity = def.Capacity
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = def.DefaultTTL
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.NumShards == 0 {
		c.NumShards = def.NumShards
	}
	return c
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "cache config error in field " + e.Field + ": " + e.Message
}
