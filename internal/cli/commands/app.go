package commands

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/armelgeek/better-query/examples/catalog"
	"github.com/armelgeek/better-query/internal/config"
	"github.com/armelgeek/better-query/internal/endpoint"
	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/adapter/memory"
	"github.com/armelgeek/better-query/internal/orm/adapter/sqladapter"
	"github.com/armelgeek/better-query/internal/orm/hooks"
	"github.com/armelgeek/better-query/internal/orm/migrate"
	"github.com/armelgeek/better-query/internal/orm/schema"
	"github.com/armelgeek/better-query/internal/security"
	"github.com/armelgeek/better-query/internal/web/cache"
	"github.com/armelgeek/better-query/internal/web/middleware"
	"github.com/armelgeek/better-query/internal/web/ratelimit"
	"github.com/armelgeek/better-query/pkg/betterquery"
)

// driverNames maps configured drivers to database/sql driver names
var driverNames = map[string]string{
	"postgres": "pgx",
	"sqlite":   "sqlite3",
}

// app is the demo API built from configuration
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *schema.Registry
	db       *sql.DB
	dialect  sqladapter.Dialect
	store    adapter.Adapter
	history  *migrate.History
	redis    *redis.Client
	mem      *cache.MemoryCache
	bq       *betterquery.BetterQuery
}

// buildApp opens storage and shared services and builds the API. autoMigrate
// overrides the configured value when non-nil.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, autoMigrate *bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: schema.NewRegistry()}
	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}

	bqCfg := betterquery.Config{
		Adapter:        a.store,
		Resources:      catalog.Resources(a.store),
		Registry:       a.registry,
		BasePath:       cfg.Server.BasePath,
		AutoMigrate:    cfg.AutoMigrate,
		History:        a.history,
		HTTPMiddleware: []middleware.Middleware{middleware.Logging(logger, "/health")},
		Logger:         logger,
	}
	if autoMigrate != nil {
		bqCfg.AutoMigrate = *autoMigrate
	}

	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}
	if cfg.RateLimit.Enabled {
		bqCfg.RateLimit = endpoint.RateLimit{Window: cfg.RateLimit.Window, Max: cfg.RateLimit.Max}
		if a.redis != nil {
			limiter, err := ratelimit.NewRedisRateLimiter(a.redis, "betterquery:ratelimit:")
			if err != nil {
				a.Close()
				return nil, err
			}
			bqCfg.Limiter = limiter
		}
	}
	if cfg.Cache.Enabled {
		bqCfg.CacheTTL = cfg.Cache.TTL
		if a.redis != nil {
			cacheCfg := cache.DefaultCacheConfig()
			cacheCfg.DefaultTTL = cfg.Cache.TTL
			bqCfg.Cache = cache.NewRedisCache(a.redis, cacheCfg)
		} else {
			a.mem = cache.NewMemoryCache()
			bqCfg.Cache = a.mem
		}
	}
	if cfg.Auth.JWTSecret != "" {
		tokens := security.NewTokenService(cfg.Auth.JWTSecret, 0)
		bqCfg.HTTPMiddleware = append(bqCfg.HTTPMiddleware, tokens.Authenticate)
	}
	if a.db != nil {
		bqCfg.Audit = hooks.NewAdapterAuditLogger(a.store)
	} else {
		bqCfg.Audit = hooks.NewZapAuditLogger(logger)
	}

	bq, err := betterquery.New(bqCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.bq = bq
	return a, nil
}

// openStorage uses the in-memory adapter when no database URL is configured
func (a *app) openStorage(ctx context.Context) error {
	db := a.cfg.Database
	if db.URL == "" {
		a.store = memory.New(a.registry)
		a.logger.Info("using in-memory storage")
		return nil
	}

	dialect, err := sqladapter.ParseDialect(db.Driver)
	if err != nil {
		return err
	}
	conn, err := sql.Open(driverNames[db.Driver], db.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(db.MaxOpenConns)
	conn.SetMaxIdleConns(db.MaxIdleConns)
	conn.SetConnMaxLifetime(db.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = conn
	a.dialect = dialect
	a.store = sqladapter.New(conn, dialect, a.registry, sqladapter.WithLogger(a.logger))
	a.history = migrate.NewHistory(conn, dialect)
	a.logger.Info("connected to database", zap.String("driver", db.Driver))
	return nil
}

// Close releases everything the app opened
func (a *app) Close() error {
	var errs error
	if a.bq != nil {
		errs = multierr.Append(errs, a.bq.Close())
	}
	if a.mem != nil {
		errs = multierr.Append(errs, a.mem.Close())
	}
	if a.redis != nil {
		errs = multierr.Append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = multierr.Append(errs, a.db.Close())
	}
	return errs
}
