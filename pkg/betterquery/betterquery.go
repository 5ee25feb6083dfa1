// Package betterquery turns declarative resources into a CRUD HTTP API with
// relationship resolution, permissions, hooks and pagination
package betterquery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/endpoint"
	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/hooks"
	"github.com/armelgeek/better-query/internal/orm/migrate"
	"github.com/armelgeek/better-query/internal/orm/relationships"
	"github.com/armelgeek/better-query/internal/orm/schema"
	"github.com/armelgeek/better-query/internal/plugin"
	"github.com/armelgeek/better-query/internal/web/cache"
	"github.com/armelgeek/better-query/internal/web/middleware"
	"github.com/armelgeek/better-query/internal/web/ratelimit"
	"github.com/armelgeek/better-query/internal/web/router"
)

// Config declares the resources and the services they share
type Config struct {
	// Adapter is required
	Adapter   adapter.Adapter
	Resources []endpoint.Resource
	Plugins   []plugin.Plugin
	// Registry receives every resource, plugin and audit model. When nil a
	// new registry is created. Adapters implementing adapter.RegistryBinder
	// are bound to it.
	Registry *schema.Registry
	// BasePath prefixes every route, e.g. "/api"
	BasePath string

	// AutoMigrate creates storage for every model when the adapter supports it
	AutoMigrate bool
	// History enables schema drift detection during auto-migration
	History *migrate.History

	// Middleware runs in every operation pipeline, before plugin middleware
	Middleware []hooks.Middleware
	// HTTPMiddleware wraps the router after request id and panic recovery
	HTTPMiddleware []middleware.Middleware

	// Limiter defaults to an in-memory sliding window when RateLimit.Max is set
	Limiter   ratelimit.Limiter
	RateLimit endpoint.RateLimit

	// Cache enables read-through caching of read and list results
	Cache    cache.Cache
	CacheTTL time.Duration

	// Audit receives an event per successful mutation
	Audit hooks.AuditLogger
	// AsyncWorkers sizes the queue running async after-hooks
	AsyncWorkers int

	Logger *zap.Logger
}

// BetterQuery is a configured API
type BetterQuery struct {
	registry  *schema.Registry
	resolver  *relationships.Resolver
	plugins   *plugin.Manager
	endpoints map[string]*endpoint.Endpoints
	order     []string
	router    *router.Router
	handler   http.Handler
	queue     *hooks.AsyncQueue
	migration *migrate.Result
	logger    *zap.Logger

	ownedLimiter *ratelimit.SlidingWindow
	adapter      adapter.Adapter
	closeOnce    sync.Once
}

// New validates the configuration, registers every model, builds the
// operations of each resource and mounts their routes
func New(cfg Config) (*BetterQuery, error) {
	if cfg.Adapter == nil {
		return nil, &endpoint.ConfigurationError{Reason: "adapter is required"}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := context.Background()

	manager := plugin.NewManager(logger)
	for _, p := range cfg.Plugins {
		if err := manager.Register(p); err != nil {
			return nil, err
		}
	}

	registry := cfg.Registry
	if registry == nil {
		registry = schema.NewRegistry()
	}
	if err := registerModels(registry, cfg, manager); err != nil {
		return nil, err
	}
	if binder, ok := cfg.Adapter.(adapter.RegistryBinder); ok {
		binder.BindRegistry(registry)
	}

	bq := &BetterQuery{
		registry:  registry,
		resolver:  relationships.NewResolver(cfg.Adapter, registry, relationships.WithLogger(logger)),
		plugins:   manager,
		endpoints: make(map[string]*endpoint.Endpoints, len(cfg.Resources)),
		queue:     hooks.NewAsyncQueue(cfg.AsyncWorkers, logger),
		adapter:   cfg.Adapter,
		logger:    logger,
	}

	limiter := cfg.Limiter
	if limiter == nil && cfg.RateLimit.Max > 0 {
		bq.ownedLimiter = ratelimit.NewSlidingWindow(ratelimit.DefaultSlidingWindowConfig())
		limiter = bq.ownedLimiter
	}
	var queryCache *cache.QueryCache
	if cfg.Cache != nil {
		queryCache = cache.NewQueryCache(cfg.Cache, cfg.CacheTTL, logger)
	}
	pipeline := append(append([]hooks.Middleware(nil), cfg.Middleware...), manager.Middleware()...)

	for _, res := range cfg.Resources {
		execOpts := []hooks.ExecutorOption{hooks.WithLogger(logger), hooks.WithAsyncQueue(bq.queue)}
		if cfg.Audit != nil {
			execOpts = append(execOpts, hooks.WithAuditLogger(cfg.Audit))
		}
		executor := hooks.NewExecutor(execOpts...)
		eps, err := endpoint.New(res, endpoint.Options{
			Adapter:    cfg.Adapter,
			Registry:   registry,
			Resolver:   bq.resolver,
			Executor:   executor,
			Middleware: pipeline,
			Limiter:    limiter,
			RateLimit:  cfg.RateLimit,
			Cache:      queryCache,
			Logger:     logger,
		})
		if err != nil {
			bq.Close()
			return nil, err
		}
		if n := manager.ApplyHooks(res.Name, executor); n > 0 {
			logger.Debug("plugin hooks applied", zap.String("resource", res.Name), zap.Int("hooks", n))
		}
		bq.endpoints[res.Name] = eps
		bq.order = append(bq.order, res.Name)
	}

	if err := bq.mount(cfg); err != nil {
		bq.Close()
		return nil, err
	}
	if err := manager.Init(ctx); err != nil {
		bq.Close()
		return nil, err
	}
	bq.queue.Start()

	if cfg.AutoMigrate {
		bq.migration = migrate.AutoMigrate(ctx, registry, cfg.Adapter, migrate.Options{History: cfg.History, Logger: logger})
		if bq.migration.Err != nil {
			logger.Warn("auto-migration finished with errors, continuing startup", zap.Error(bq.migration.Err))
		}
	}
	return bq, nil
}

// registerModels registers every resource, plugin and audit model before any
// operation is built, so relationships may target resources declared later
func registerModels(registry *schema.Registry, cfg Config, manager *plugin.Manager) error {
	seen := make(map[string]bool, len(cfg.Resources))
	for _, res := range cfg.Resources {
		if err := res.Validate(); err != nil {
			return err
		}
		if seen[res.Name] {
			return &endpoint.ConfigurationError{Resource: res.Name, Reason: "resource is declared twice"}
		}
		seen[res.Name] = true
		model, err := res.Model()
		if err != nil {
			return &endpoint.ConfigurationError{Resource: res.Name, Reason: err.Error()}
		}
		if err := registry.Register(model); err != nil {
			return &endpoint.ConfigurationError{Resource: res.Name, Reason: err.Error()}
		}
	}
	for _, m := range manager.Models() {
		if err := registry.Register(m); err != nil {
			return &endpoint.ConfigurationError{Resource: m.Name, Reason: err.Error()}
		}
	}
	if _, ok := cfg.Audit.(*hooks.AdapterAuditLogger); ok && !registry.Exists(hooks.AuditModelName) {
		if err := registry.Register(hooks.AuditModel()); err != nil {
			return &endpoint.ConfigurationError{Resource: hooks.AuditModelName, Reason: err.Error()}
		}
	}
	if err := registry.ValidateAll(); err != nil {
		return &endpoint.ConfigurationError{Reason: err.Error()}
	}
	return nil
}

func (bq *BetterQuery) mount(cfg Config) error {
	httpMiddleware := append([]middleware.Middleware{middleware.RequestID(), middleware.Recovery(bq.logger)}, cfg.HTTPMiddleware...)
	bq.router = router.New(cfg.BasePath, httpMiddleware...)
	for _, name := range bq.order {
		if err := bq.router.MountResource(bq.endpoints[name]); err != nil {
			return err
		}
	}

	pluginRoutes, err := bq.plugins.Endpoints()
	if err != nil {
		return err
	}
	for _, ep := range pluginRoutes {
		info := router.RouteInfo{Method: ep.Method, Pattern: ep.Path, Name: ep.Name, Operation: "plugin"}
		if !bq.router.Handle(info, ep.Handler) {
			return &endpoint.ConfigurationError{Reason: fmt.Sprintf("plugin endpoint %s conflicts with a mounted route", ep.Name)}
		}
	}
	bq.handler = bq.router
	return nil
}

// Handler returns the HTTP API
func (bq *BetterQuery) Handler() http.Handler {
	return bq.handler
}

// Endpoints returns the operations of a resource for in-process calls
func (bq *BetterQuery) Endpoints(name string) (*endpoint.Endpoints, bool) {
	eps, ok := bq.endpoints[name]
	return eps, ok
}

// Resources returns resource names in declaration order
func (bq *BetterQuery) Resources() []string {
	return append([]string(nil), bq.order...)
}

// Resolver returns the shared relationship resolver
func (bq *BetterQuery) Resolver() *relationships.Resolver {
	return bq.resolver
}

// Registry returns the model registry
func (bq *BetterQuery) Registry() *schema.Registry {
	return bq.registry
}

// Routes describes every mounted route
func (bq *BetterQuery) Routes() []router.RouteInfo {
	if bq.router == nil {
		return nil
	}
	return bq.router.Routes()
}

// Migration returns the auto-migration result, or nil when it did not run
func (bq *BetterQuery) Migration() *migrate.Result {
	return bq.migration
}

// Close drains async hooks and releases owned services. An adapter that
// implements io.Closer is closed too.
func (bq *BetterQuery) Close() error {
	var errs error
	bq.closeOnce.Do(func() {
		bq.queue.Shutdown()
		if bq.ownedLimiter != nil {
			bq.ownedLimiter.Close()
		}
		if closer, ok := bq.adapter.(io.Closer); ok {
			errs = multierr.Append(errs, closer.Close())
		}
	})
	return errs
}
