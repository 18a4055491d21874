// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/activesoft/go-backoffice/cache"
)

// Config is the full runtime configuration.
type Config struct {
	// Environment is "development" or "production"; it selects the log
	// handler.
	Environment string
	LogLevel    string
	HTTPAddr    string

	// DatabaseURL is a postgres DSN, or a sqlite path when it carries no
	// scheme. Empty falls back to an in-memory sqlite database.
	DatabaseURL string

	JWTSecret  string
	SessionTTL time.Duration

	Cache cache.Config

	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string

	IPEchoURL string
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present.
func Load() (Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Config{
		Environment: envOr("APP_ENV", "development"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		S3Region:    envOr("S3_REGION", "us-east-1"),
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Bucket:    envOr("S3_BUCKET", "backoffice-assets"),
		IPEchoURL:   os.Getenv("IP_ECHO_URL"),
	}

	var err error
	if cfg.SessionTTL, err = envDuration("SESSION_TTL", 12*time.Hour); err != nil {
		return cfg, err
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Backend = cache.Backend(envOr("CACHE_BACKEND", string(cacheCfg.Backend)))
	if cacheCfg.Capacity, err = envInt("CACHE_CAPACITY", cacheCfg.Capacity); err != nil {
		return cfg, err
	}
	if cacheCfg.DefaultTTL, err = envDuration("CACHE_TTL", cacheCfg.DefaultTTL); err != nil {
		return cfg, err
	}
	if cacheCfg.CleanupInterval, err = envDuration("CACHE_CLEANUP_INTERVAL", cacheCfg.CleanupInterval); err != nil {
		return cfg, err
	}
	cfg.Cache = cacheCfg

	return cfg, nil
}

// Validate checks the settings a running service cannot do without.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return c.Cache.Validate()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
