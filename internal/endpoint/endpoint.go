package endpoint

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/hooks"
	"github.com/armelgeek/better-query/internal/orm/relationships"
	"github.com/armelgeek/better-query/internal/orm/schema"
	"github.com/armelgeek/better-query/internal/orm/validation"
	"github.com/armelgeek/better-query/internal/web/cache"
	"github.com/armelgeek/better-query/internal/web/ratelimit"
)

// RateLimit bounds every operation of a resource per client
type RateLimit struct {
	Window time.Duration
	Max    int
}

// Options are the collaborators shared by the operations of a resource
type Options struct {
	// Adapter is required
	Adapter adapter.Adapter
	// Registry holds the resource models. The resource is registered when missing.
	Registry *schema.Registry
	Resolver *relationships.Resolver
	// Executor must be dedicated to this resource; its hooks are not filtered by name
	Executor   *hooks.Executor
	Validator  *validation.Engine
	Middleware []hooks.Middleware

	Limiter   ratelimit.Limiter
	RateLimit RateLimit
	Cache     *cache.QueryCache

	Logger *zap.Logger
}

// Endpoints are the generated operations of one resource
type Endpoints struct {
	resource   Resource
	model      *schema.Model
	adapter    adapter.Adapter
	registry   *schema.Registry
	resolver   *relationships.Resolver
	executor   *hooks.Executor
	validator  *validation.Engine
	middleware []hooks.Middleware
	limiter    ratelimit.Limiter
	rateLimit  RateLimit
	cache      *cache.QueryCache
	logger     *zap.Logger
}

// Input carries the caller-supplied part of a request
type Input struct {
	// Request is the originating HTTP request, if any
	Request *http.Request
	ID      string
	Data    map[string]interface{}
	Include *adapter.Include
	Select  []string
	// User and Scopes preset the identity for in-process calls
	User   *hooks.User
	Scopes []string
}

// New validates the resource and builds its operations
func New(resource Resource, opts Options) (*Endpoints, error) {
	if err := resource.Validate(); err != nil {
		return nil, err
	}
	if opts.Adapter == nil {
		return nil, configError(resource.Name, "adapter is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := opts.Registry
	if registry == nil {
		registry = schema.NewRegistry()
	}
	if !registry.Exists(resource.Name) {
		model, err := resource.Model()
		if err != nil {
			return nil, configError(resource.Name, "%v", err)
		}
		if err := registry.Register(model); err != nil {
			return nil, configError(resource.Name, "%v", err)
		}
	}
	model, _ := registry.Get(resource.Name)

	e := &Endpoints{
		resource:   resource,
		model:      model,
		adapter:    opts.Adapter,
		registry:   registry,
		resolver:   opts.Resolver,
		executor:   opts.Executor,
		validator:  opts.Validator,
		middleware: append([]hooks.Middleware(nil), opts.Middleware...),
		limiter:    opts.Limiter,
		rateLimit:  opts.RateLimit,
		cache:      opts.Cache,
		logger:     logger.With(zap.String("resource", resource.Name)),
	}
	if e.resolver == nil {
		e.resolver = relationships.NewResolver(opts.Adapter, registry, relationships.WithLogger(logger))
	}
	if e.executor == nil {
		e.executor = hooks.NewExecutor(hooks.WithLogger(logger))
	}
	if e.validator == nil {
		e.validator = validation.NewEngine()
	}
	resource.registerHooks(e.executor)
	return e, nil
}

// Name returns the resource name
func (e *Endpoints) Name() string {
	return e.resource.Name
}

// Resource returns the resource declaration
func (e *Endpoints) Resource() *Resource {
	return &e.resource
}

// Model returns the registered storage model
func (e *Endpoints) Model() *schema.Model {
	return e.model
}

// Executor returns the hook executor, so plugins can append their hooks
func (e *Endpoints) Executor() *hooks.Executor {
	return e.executor
}

// Create validates and stores a new record
func (e *Endpoints) Create(ctx context.Context, in Input) (adapter.Record, error) {
	hctx, err := e.begin(ctx, hooks.OpCreate, in)
	if err != nil {
		return nil, err
	}
	inc, err := e.shapeOf(in)
	if err != nil {
		return nil, err
	}
	if err := e.runBefore(hctx, hooks.BeforeCreate); err != nil {
		return nil, err
	}
	relations, err := e.parsePayload(hctx, validation.ModeCreate)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(hctx); err != nil {
		return nil, err
	}
	assignID(hctx.Data)
	if err := e.checkRateLimit(hctx); err != nil {
		return nil, err
	}

	if err := e.validateReferences(hctx); err != nil {
		return nil, err
	}
	created, err := e.store(hctx, nil, relations)
	if err != nil {
		return nil, err
	}
	result, err := e.present(hctx, created, inc, in.Select)
	if err != nil {
		return nil, err
	}
	hctx.ID = idString(created["id"])
	hctx.Result = result
	e.invalidate(hctx)
	e.complete(hctx, hooks.AfterCreate)
	return result, nil
}

// Read fetches one record by id
func (e *Endpoints) Read(ctx context.Context, in Input) (adapter.Record, error) {
	hctx, err := e.begin(ctx, hooks.OpRead, in)
	if err != nil {
		return nil, err
	}
	inc, err := e.shapeOf(in)
	if err != nil {
		return nil, err
	}
	if err := e.loadExisting(hctx); err != nil {
		return nil, err
	}
	if err := e.authorize(hctx); err != nil {
		return nil, err
	}
	if err := e.checkRateLimit(hctx); err != nil {
		return nil, err
	}

	key := cache.QueryKey(e.resource.Name, string(hooks.OpRead), hctx.ID, includeKey(inc), joinSelect(in.Select), e.cacheScope(hctx))
	var result adapter.Record
	if e.cache != nil && e.cache.Get(hctx, key, &result) {
		result = e.restore(e.resource.Name, result)
	} else {
		result, err = e.present(hctx, hctx.Existing, inc, in.Select)
		if err != nil {
			return nil, err
		}
		if e.cache != nil {
			e.cache.Set(hctx, key, result)
		}
	}
	hctx.Result = result
	e.executor.RunAfter(hctx, hooks.AfterRead)
	return result, nil
}

// Update applies a partial payload to an existing record
func (e *Endpoints) Update(ctx context.Context, in Input) (adapter.Record, error) {
	hctx, err := e.begin(ctx, hooks.OpUpdate, in)
	if err != nil {
		return nil, err
	}
	inc, err := e.shapeOf(in)
	if err != nil {
		return nil, err
	}
	if err := e.loadExisting(hctx); err != nil {
		return nil, err
	}
	if err := e.runBefore(hctx, hooks.BeforeUpdate); err != nil {
		return nil, err
	}
	relations, err := e.parsePayload(hctx, validation.ModeUpdate)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(hctx); err != nil {
		return nil, err
	}
	if err := e.checkRateLimit(hctx); err != nil {
		return nil, err
	}

	if err := e.validateReferences(hctx); err != nil {
		return nil, err
	}
	updated, err := e.store(hctx, idWhere(hctx.ID), relations)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, notFound()
	}
	result, err := e.present(hctx, updated, inc, in.Select)
	if err != nil {
		return nil, err
	}
	hctx.Result = result
	e.invalidate(hctx)
	e.complete(hctx, hooks.AfterUpdate)
	return result, nil
}

// Delete removes a record by id
func (e *Endpoints) Delete(ctx context.Context, in Input) error {
	hctx, err := e.begin(ctx, hooks.OpDelete, in)
	if err != nil {
		return err
	}
	if err := e.loadExisting(hctx); err != nil {
		return err
	}
	if err := e.runBefore(hctx, hooks.BeforeDelete); err != nil {
		return err
	}
	if err := e.authorize(hctx); err != nil {
		return err
	}
	if err := e.checkRateLimit(hctx); err != nil {
		return err
	}

	if err := e.adapter.Delete(hctx, e.resource.Name, idWhere(hctx.ID)); err != nil {
		return e.storageError(hctx, err)
	}
	e.invalidate(hctx)
	e.complete(hctx, hooks.AfterDelete)
	return nil
}

// Relate changes the many-to-many associations of a record. It runs as an
// update: update permissions, scopes, ownership and hooks apply.
func (e *Endpoints) Relate(ctx context.Context, in Input, relation string, op relationships.ManyToManyOp, ids []interface{}) (adapter.Record, error) {
	rel, ok := e.model.Relationship(relation)
	if !ok || rel.Type != schema.RelationshipBelongsToMany {
		return nil, badRequest("%s is not a many-to-many relationship of %s", relation, e.resource.Name)
	}
	in.Data = map[string]interface{}{relation: ids}
	hctx, err := e.begin(ctx, hooks.OpUpdate, in)
	if err != nil {
		return nil, err
	}
	inc, err := e.shapeOf(in)
	if err != nil {
		return nil, err
	}
	if err := e.loadExisting(hctx); err != nil {
		return nil, err
	}
	if err := e.runBefore(hctx, hooks.BeforeUpdate); err != nil {
		return nil, err
	}
	if err := e.authorize(hctx); err != nil {
		return nil, err
	}
	if err := e.checkRateLimit(hctx); err != nil {
		return nil, err
	}

	if err := e.resolver.ManageManyToMany(hctx, e.resource.Name, relation, hctx.Existing["id"], op, ids); err != nil {
		return nil, adapterFailure(err)
	}
	result, err := e.present(hctx, hctx.Existing, inc.Merge(adapter.NewInclude(relation)), in.Select)
	if err != nil {
		return nil, err
	}
	hctx.Result = result
	e.invalidate(hctx)
	e.complete(hctx, hooks.AfterUpdate)
	return result, nil
}
