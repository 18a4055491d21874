// Package di wires the application graph: database, cache, event bus,
// realtime hub, auth and per-collection stores, built once and passed down
// explicitly instead of living in package-level singletons.
package di

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/activesoft/go-backoffice/assets"
	"github.com/activesoft/go-backoffice/auth"
	"github.com/activesoft/go-backoffice/cache"
	"github.com/activesoft/go-backoffice/config"
	"github.com/activesoft/go-backoffice/events"
	"github.com/activesoft/go-backoffice/migrations"
	"github.com/activesoft/go-backoffice/realtime"
	"github.com/activesoft/go-backoffice/record"
	"github.com/activesoft/go-backoffice/store"
)

// Container holds the application's shared services. Build one with New,
// start the background parts with Init, and tear down with Dispose.
type Container struct {
	Logger  *slog.Logger
	DB      *bun.DB
	Dialect string // goose dialect name: "postgres" or "sqlite3"
	Cache   cache.CacheService
	Bus     *events.Bus
	Hub     *realtime.Hub
	Auth    *auth.Manager
	Audit   *store.Audit
	IP      *auth.IPResolver

	// Assets is nil unless S3 credentials are configured; brochure uploads
	// are optional in local setups.
	Assets *assets.Storage

	cfg    config.Config
	cancel context.CancelFunc
}

// New builds the graph. Nothing is started yet; Init does that.
func New(cfg config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, dialect, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cacheSvc, err := cache.New(cfg.Cache, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	provider, err := auth.NewLocalProvider(db, auth.LocalConfig{
		Secret:     cfg.JWTSecret,
		SessionTTL: cfg.SessionTTL,
	}, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	resolver := auth.NewIPResolver(cfg.IPEchoURL)
	manager := auth.NewManager(provider, db, logger)
	manager.UseIPResolver(resolver)

	return &Container{
		Logger:  logger,
		DB:      db,
		Dialect: dialect,
		Cache:   cacheSvc,
		Bus:     events.NewBus(logger),
		Hub:     realtime.NewHub(logger),
		Auth:    manager,
		Audit:   store.NewAudit(db, logger),
		IP:      resolver,
		cfg:     cfg,
	}, nil
}

// Init applies migrations and starts the background loops: the cache sweep,
// the cache invalidation subscriber and the realtime hub.
func (c *Container) Init(ctx context.Context) error {
	if err := migrations.Up(ctx, c.DB.DB, c.Dialect); err != nil {
		return err
	}

	if c.cfg.S3AccessKey != "" {
		storage, err := assets.New(ctx, assets.Config{
			Region:    c.cfg.S3Region,
			Endpoint:  c.cfg.S3Endpoint,
			AccessKey: c.cfg.S3AccessKey,
			SecretKey: c.cfg.S3SecretKey,
			Bucket:    c.cfg.S3Bucket,
		})
		if err != nil {
			return err
		}
		c.Assets = storage
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.Cache.StartSweep(runCtx)

	invalidations, err := c.Bus.Subscribe(runCtx)
	if err != nil {
		cancel()
		return err
	}
	go c.invalidate(invalidations)

	hubChanges, err := c.Bus.Subscribe(runCtx)
	if err != nil {
		cancel()
		return err
	}
	go c.Hub.Run(runCtx, hubChanges)

	return nil
}

// Dispose stops the background loops and closes the shared resources.
func (c *Container) Dispose() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.Bus != nil {
		c.Bus.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
}

// NewStore builds a gated, audited store for one collection, wired to the
// container's shared services.
func NewStore[T record.Record](c *Container, table string, factory func() T, opts ...store.Option[T]) *store.Store[T] {
	base := []store.Option[T]{
		store.WithAuthGate[T](c.Auth),
		store.WithAudit[T](c.Audit),
		store.WithPublisher[T](c.Bus),
		store.WithLogger[T](c.Logger),
	}
	return store.New(c.DB, table, factory, append(base, opts...)...)
}

// NewCachedStore builds a store like NewStore and decorates it with the
// container's cache for read-through FindByID/FindMany. Writes through the
// decorator invalidate the collection synchronously; writes from anywhere
// else reach the cache through the bus subscriber.
func NewCachedStore[T record.Record](c *Container, table string, factory func() T, opts ...store.Option[T]) *store.Cached[T] {
	return store.NewCached(NewStore(c, table, factory, opts...), c.Cache, c.cfg.Cache.DefaultTTL)
}

// invalidate drops every cache entry for a table when any write to it is
// published.
func (c *Container) invalidate(changes <-chan events.Change) {
	for change := range changes {
		pattern := cache.Prefix(change.Table)
		if _, err := c.Cache.InvalidatePattern(pattern); err != nil {
			c.Logger.Warn("cache invalidation failed", "table", change.Table, "error", err)
		}
	}
}

// openDatabase opens a bun handle for url: a postgres DSN, a sqlite path, or
// an in-memory sqlite database when empty.
func openDatabase(url string) (*bun.DB, string, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		sqldb, err := sql.Open("pgx", url)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres: %w", err)
		}
		return bun.NewDB(sqldb, pgdialect.New()), "postgres", nil
	}

	dsn := url
	if dsn == "" {
		dsn = "file::memory:?cache=shared&_fk=1"
	}
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps the shared in-memory database alive and
	// sidesteps sqlite's writer contention.
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), "sqlite3", nil
}
