package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/adapter/memory"
	"github.com/armelgeek/better-query/internal/orm/hooks"
	"github.com/armelgeek/better-query/internal/orm/relationships"
	"github.com/armelgeek/better-query/internal/orm/schema"
	"github.com/armelgeek/better-query/internal/security"
	"github.com/armelgeek/better-query/internal/web/cache"
	webcontext "github.com/armelgeek/better-query/internal/web/context"
	"github.com/armelgeek/better-query/internal/web/ratelimit"
)

type fixture struct {
	registry *schema.Registry
	store    *memory.Adapter
	tags     *Endpoints
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := schema.NewRegistry()
	store := memory.New(registry)
	tags, err := New(Resource{
		Name:   "tag",
		Schema: schema.Object(map[string]*schema.TypeSpec{"name": schema.String()}),
	}, Options{Adapter: store, Registry: registry})
	require.NoError(t, err)
	return &fixture{registry: registry, store: store, tags: tags}
}

func productResource() Resource {
	return Resource{
		Name: "product",
		Schema: schema.Object(map[string]*schema.TypeSpec{
			"name":     schema.String().MinLen(1),
			"price":    schema.Number().Gte(0).WithDefault(float64(0)),
			"status":   schema.String().OneOf("draft", "published").WithDefault("draft"),
			"ownerId":  schema.String().Optional(),
			"released": schema.Date().Optional(),
		}),
		Relationships: map[string]*schema.Relationship{
			"tags": schema.BelongsToMany("tag", "product_tags", "productId", "tagId"),
		},
	}
}

func (f *fixture) products(t *testing.T, res Resource, opts Options) *Endpoints {
	t.Helper()
	opts.Adapter = f.store
	opts.Registry = f.registry
	e, err := New(res, opts)
	require.NoError(t, err)
	return e
}

func assertKind(t *testing.T, err error, sentinel *Error) *Error {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	return perr
}

func TestNew_Configuration(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		res  Resource
		opts Options
	}{
		{"missing name", Resource{Schema: schema.Object(nil)}, Options{Adapter: f.store}},
		{"non-object schema", Resource{Name: "x", Schema: schema.String()}, Options{Adapter: f.store}},
		{"missing adapter", productResource(), Options{}},
		{"unknown ownership field", func() Resource {
			r := productResource()
			r.Name = "owned"
			r.Ownership = &Ownership{Field: "userId"}
			return r
		}(), Options{Adapter: f.store}},
		{"unknown search field", func() Resource {
			r := productResource()
			r.Name = "searched"
			r.Search = &Search{Fields: []string{"title"}}
			return r
		}(), Options{Adapter: f.store}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.res, tt.opts)
			var cerr *ConfigurationError
			assert.True(t, errors.As(err, &cerr), "got %v", err)
		})
	}
}

func TestCreate_DefaultsAndID(t *testing.T) {
	f := newFixture(t)
	products := f.products(t, productResource(), Options{})
	ctx := context.Background()

	rec, err := products.Create(ctx, Input{Data: map[string]interface{}{
		"name":     "Lamp",
		"released": "2024-03-01",
		"unknown":  "dropped",
	}})
	require.NoError(t, err)
	assert.NotEmpty(t, rec["id"])
	assert.Equal(t, "Lamp", rec["name"])
	assert.Equal(t, float64(0), rec["price"])
	assert.Equal(t, "draft", rec["status"])
	assert.IsType(t, time.Time{}, rec["released"])
	assert.NotContains(t, rec, "unknown")

	_, err = products.Create(ctx, Input{Data: map[string]interface{}{"name": "", "price": float64(-1)}})
	verr := assertKind(t, err, ErrValidationFailed)
	assert.Equal(t, 400, verr.Status)
	fields, ok := verr.Details.(map[string][]string)
	require.True(t, ok)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "price")
}

func TestCreate_ManyToManyPayload(t *testing.T) {
	f := newFixture(t)
	products := f.products(t, productResource(), Options{})
	ctx := context.Background()

	t1, err := f.tags.Create(ctx, Input{Data: map[string]interface{}{"name": "t1"}})
	require.NoError(t, err)
	t2, err := f.tags.Create(ctx, Input{Data: map[string]interface{}{"name": "t2"}})
	require.NoError(t, err)

	created, err := products.Create(ctx, Input{
		Data:    map[string]interface{}{"name": "Desk", "tags": []interface{}{t1["id"], map[string]interface{}{"id": t2["id"]}}},
		Include: adapter.NewInclude("tags"),
	})
	require.NoError(t, err)
	assert.Len(t, created["tags"], 2)

	_, err = products.Create(ctx, Input{Data: map[string]interface{}{"name": "Bad", "tags": "t1"}})
	assertKind(t, err, ErrValidationFailed)

	id := fmt.Sprint(created["id"])
	updated, err := products.Update(ctx, Input{
		ID:      id,
		Data:    map[string]interface{}{"tags": []interface{}{t2["id"]}},
		Include: adapter.NewInclude("tags"),
	})
	require.NoError(t, err)
	require.Len(t, updated["tags"], 1)
	assert.Equal(t, "t2", updated["tags"].([]adapter.Record)[0]["name"])
}

func TestUpdate_NotFoundSkipsAfterHooksAndAudit(t *testing.T) {
	f := newFixture(t)
	var audited, after int
	executor := hooks.NewExecutor(hooks.WithAuditLogger(hooks.AuditFunc(func(ctx context.Context, ev hooks.AuditEvent) error {
		audited++
		return nil
	})))
	res := productResource()
	res.Hooks.AfterUpdate = func(ctx *hooks.Context) error {
		after++
		return nil
	}
	products := f.products(t, res, Options{Executor: executor})

	_, err := products.Update(context.Background(), Input{ID: "missing", Data: map[string]interface{}{"name": "x"}})
	nerr := assertKind(t, err, ErrNotFound)
	assert.Equal(t, 404, nerr.Status)
	assert.Equal(t, "Resource not found", nerr.Message)
	assert.Zero(t, after)
	assert.Zero(t, audited)

	created, err := products.Create(context.Background(), Input{Data: map[string]interface{}{"name": "Lamp"}})
	require.NoError(t, err)
	_, err = products.Update(context.Background(), Input{ID: fmt.Sprint(created["id"]), Data: map[string]interface{}{"price": float64(5)}})
	require.NoError(t, err)
	assert.Equal(t, 1, after)
	assert.Equal(t, 2, audited)
}

func TestHooks_BeforeHookMutatesAndAborts(t *testing.T) {
	f := newFixture(t)
	res := productResource()
	res.Hooks.OnCreate = func(ctx *hooks.Context) error {
		if ctx.Data["name"] == "forbidden" {
			return errors.New("name not allowed")
		}
		ctx.Data["status"] = "published"
		return nil
	}
	products := f.products(t, res, Options{})
	ctx := context.Background()

	rec, err := products.Create(ctx, Input{Data: map[string]interface{}{"name": "Lamp"}})
	require.NoError(t, err)
	assert.Equal(t, "published", rec["status"])

	_, err = products.Create(ctx, Input{Data: map[string]interface{}{"name": "forbidden"}})
	herr := assertKind(t, err, ErrHookExecutionFailed)
	assert.Contains(t, herr.Message, "name not allowed")
	assert.ErrorIs(t, err, hooks.ErrHookFailed)

	n, err := f.store.Count(ctx, "product", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPermissions_MiddlewareIdentity(t *testing.T) {
	requireUser := func(ctx *hooks.Context) bool { return ctx.User != nil }

	f := newFixture(t)
	res := productResource()
	res.Permissions = map[hooks.Operation]PermissionFunc{hooks.OpCreate: requireUser}
	anonymous := f.products(t, res, Options{})

	_, err := anonymous.Create(context.Background(), Input{Data: map[string]interface{}{"name": "Lamp"}})
	ferr := assertKind(t, err, ErrForbidden)
	assert.Equal(t, 403, ferr.Status)

	f2 := newFixture(t)
	authenticated := f2.products(t, res, Options{Middleware: []hooks.Middleware{
		func(ctx *hooks.Context) error {
			ctx.User = &hooks.User{ID: "u1"}
			return nil
		},
	}})
	_, err = authenticated.Create(context.Background(), Input{Data: map[string]interface{}{"name": "Lamp"}})
	require.NoError(t, err)

	// identity stored on the request by HTTP middleware is picked up too
	req := httptest.NewRequest("POST", "/product", nil)
	req = req.WithContext(webcontext.SetUser(req.Context(), &hooks.User{ID: "u2"}))
	_, err = anonymous.Create(context.Background(), Input{Request: req, Data: map[string]interface{}{"name": "Lamp"}})
	require.NoError(t, err)

	// a middleware error aborts as Forbidden
	f3 := newFixture(t)
	failing := f3.products(t, res, Options{Middleware: []hooks.Middleware{
		func(ctx *hooks.Context) error { return errors.New("bad token") },
	}})
	_, err = failing.Create(context.Background(), Input{Data: map[string]interface{}{"name": "Lamp"}})
	assertKind(t, err, ErrForbidden)
}

func TestScopes(t *testing.T) {
	f := newFixture(t)
	res := productResource()
	res.Scopes = map[hooks.Operation][]string{hooks.OpDelete: {"products:delete"}}
	products := f.products(t, res, Options{})
	ctx := context.Background()

	rec, err := products.Create(ctx, Input{Data: map[string]interface{}{"name": "Lamp"}})
	require.NoError(t, err)
	id := fmt.Sprint(rec["id"])

	err = products.Delete(ctx, Input{ID: id, User: &hooks.User{ID: "u1", Scopes: []string{"products:read"}}})
	assertKind(t, err, ErrForbidden)

	require.NoError(t, products.Delete(ctx, Input{ID: id, Scopes: []string{"products:delete"}}))
	err = products.Delete(ctx, Input{ID: id, Scopes: []string{"products:delete"}})
	assertKind(t, err, ErrNotFound)
}

func TestOwnership_Flexible(t *testing.T) {
	f := newFixture(t)
	res := productResource()
	res.Ownership = &Ownership{Field: "ownerId", Strategy: security.Flexible}
	products := f.products(t, res, Options{})
	ctx := context.Background()

	owner := &hooks.User{ID: "owner"}
	stranger := &hooks.User{ID: "stranger"}
	admin := &hooks.User{ID: "root", Roles: []string{"admin"}}

	rec, err := products.Create(ctx, Input{User: owner, Data: map[string]interface{}{"name": "Lamp"}})
	require.NoError(t, err)
	assert.Equal(t, "owner", rec["ownerId"])
	id := fmt.Sprint(rec["id"])

	_, err = products.Create(ctx, Input{Data: map[string]interface{}{"name": "Orphan"}})
	assertKind(t, err, ErrForbidden)
	_, err = products.Create(ctx, Input{User: stranger, Data: map[string]interface{}{"name": "Spoof", "ownerId": "owner"}})
	assertKind(t, err, ErrForbidden)

	_, err = products.Read(ctx, Input{ID: id, User: owner})
	assert.NoError(t, err)
	_, err = products.Read(ctx, Input{ID: id, User: admin})
	assert.NoError(t, err)
	_, err = products.Read(ctx, Input{ID: id, User: stranger})
	assertKind(t, err, ErrForbidden)
	_, err = products.Update(ctx, Input{ID: id, User: stranger, Data: map[string]interface{}{"name": "Mine"}})
	assertKind(t, err, ErrForbidden)

	_, err = products.Create(ctx, Input{User: stranger, Data: map[string]interface{}{"name": "Chair"}})
	require.NoError(t, err)

	page, err := products.List(ctx, Input{User: owner}, ListParams{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Lamp", page.Items[0]["name"])

	page, err = products.List(ctx, Input{User: admin}, ListParams{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	_, err = products.List(ctx, Input{}, ListParams{})
	assertKind(t, err, ErrForbidden)
}

func TestOwnership_StrictIgnoresAdmin(t *testing.T) {
	f := newFixture(t)
	res := productResource()
	res.Ownership = &Ownership{Field: "ownerId"}
	products := f.products(t, res, Options{})
	ctx := context.Background()

	rec, err := products.Create(ctx, Input{User: &hooks.User{ID: "owner"}, Data: map[string]interface{}{"name": "Lamp"}})
	require.NoError(t, err)

	err = products.Delete(ctx, Input{ID: fmt.Sprint(rec["id"]), User: &hooks.User{ID: "root", Roles: []string{"admin"}}})
	assertKind(t, err, ErrForbidden)
}

func TestList_Pagination(t *testing.T) {
	f := newFixture(t)
	products := f.products(t, productResource(), Options{})
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		_, err := products.Create(ctx, Input{Data: map[string]interface{}{
			"id":   fmt.Sprintf("p%02d", i),
			"name": fmt.Sprintf("Product %02d", i),
		}})
		require.NoError(t, err)
	}

	page, err := products.List(ctx, Input{}, ListParams{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Items, 10)
	assert.Equal(t, Pagination{Page: 1, Limit: 10, Total: 25, TotalPages: 3, HasNext: true, HasPrev: false}, page.Pagination)

	page, err = products.List(ctx, Input{}, ListParams{Page: 3, Limit: 10, SortBy: "name", SortOrder: "desc"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.Equal(t, "Product 04", page.Items[0]["name"])
	assert.False(t, page.Pagination.HasNext)
	assert.True(t, page.Pagination.HasPrev)

	page, err = products.List(ctx, Input{}, ListParams{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, page.Pagination.Limit)

	page, err = products.List(ctx, Input{}, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, page.Pagination.Limit)
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		total, limit, page int
		want               Pagination
	}{
		{0, 10, 1, Pagination{Page: 1, Limit: 10, Total: 0, TotalPages: 0}},
		{10, 10, 1, Pagination{Page: 1, Limit: 10, Total: 10, TotalPages: 1}},
		{11, 10, 2, Pagination{Page: 2, Limit: 10, Total: 11, TotalPages: 2, HasPrev: true}},
		{25, 10, 2, Pagination{Page: 2, Limit: 10, Total: 25, TotalPages: 3, HasNext: true, HasPrev: true}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewPagination(tt.page, tt.limit, tt.total))
	}
}

func TestList_SearchFiltersAndDateRange(t *testing.T) {
	f := newFixture(t)
	res := productResource()
	res.Search = &Search{Fields: []string{"name"}, Strategy: SearchStartsWith}
	products := f.products(t, res, Options{})
	ctx := context.Background()

	for _, p := range []map[string]interface{}{
		{"name": "Desk Lamp", "price": float64(30), "status": "published", "released": "2024-01-10"},
		{"name": "desk chair", "price": float64(80), "status": "draft", "released": "2024-02-10"},
		{"name": "Floor Lamp", "price": float64(50), "status": "published", "released": "2024-03-10"},
	} {
		_, err := products.Create(ctx, Input{Data: p})
		require.NoError(t, err)
	}

	page, err := products.List(ctx, Input{}, ListParams{Search: "desk"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	page, err = products.List(ctx, Input{}, ListParams{
		Search:  "desk",
		Filters: map[string]interface{}{"status": "published"},
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Desk Lamp", page.Items[0]["name"])

	where, err := ParseWhere([]interface{}{
		map[string]interface{}{"field": "price", "operator": "gte", "value": float64(50)},
	})
	require.NoError(t, err)
	page, err = products.List(ctx, Input{}, ListParams{Where: where, SortBy: "price"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Floor Lamp", page.Items[0]["name"])

	page, err = products.List(ctx, Input{}, ListParams{
		DateRange: &DateRange{Field: "released", From: "2024-02-01", To: "2024-03-31"},
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	page, err = products.List(ctx, Input{}, ListParams{
		Filters: map[string]interface{}{"price": map[string]interface{}{"gt": float64(20), "lt": float64(60)}},
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	_, err = products.List(ctx, Input{}, ListParams{SortBy: "nope"})
	assertKind(t, err, ErrBadRequest)
	_, err = products.List(ctx, Input{}, ListParams{Filters: map[string]interface{}{"nope": 1}})
	assertKind(t, err, ErrBadRequest)
	_, err = products.List(ctx, Input{}, ListParams{Search: "x", SearchFields: []string{"status"}})
	assertKind(t, err, ErrBadRequest)
}

func TestParseFilters(t *testing.T) {
	where, err := ParseFilters(map[string]interface{}{
		"status": "draft",
		"id":     []interface{}{"a", "b"},
		"price":  map[string]interface{}{"operator": "between", "value": []interface{}{1.0, 2.0}},
	})
	require.NoError(t, err)
	require.Len(t, where, 3)
	assert.Equal(t, adapter.In("id", []interface{}{"a", "b"}), where[0])
	assert.Equal(t, adapter.OpBetween, where[1].Operator)
	assert.Equal(t, adapter.Eq("status", "draft"), where[2])

	_, err = ParseFilters(map[string]interface{}{"x": map[string]interface{}{"approx": 1}})
	assert.Error(t, err)

	_, err = ParseWhere("nope")
	assert.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t)
	limiter := ratelimit.NewSlidingWindow(ratelimit.DefaultSlidingWindowConfig())
	defer limiter.Close()
	products := f.products(t, productResource(), Options{
		Limiter:   limiter,
		RateLimit: RateLimit{Window: time.Minute, Max: 2},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := products.List(ctx, Input{}, ListParams{})
		require.NoError(t, err)
	}
	_, err := products.List(ctx, Input{}, ListParams{})
	rerr := assertKind(t, err, ErrRateLimitExceeded)
	assert.Equal(t, 429, rerr.Status)
	require.NotNil(t, rerr.RateLimit)
	assert.Equal(t, 2, rerr.RateLimit.Limit)

	// other operations have their own counters
	_, err = products.Create(ctx, Input{Data: map[string]interface{}{"name": "Lamp"}})
	require.NoError(t, err)
}

type countingStore struct {
	*memory.Adapter
	mu    sync.Mutex
	finds int
}

func (c *countingStore) FindMany(ctx context.Context, model string, q adapter.Query) ([]adapter.Record, error) {
	c.mu.Lock()
	c.finds++
	c.mu.Unlock()
	return c.Adapter.FindMany(ctx, model, q)
}

func TestCache_ReadThroughAndInvalidation(t *testing.T) {
	f := newFixture(t)
	store := &countingStore{Adapter: f.store}
	backend := cache.NewMemoryCache()
	defer backend.Close()

	products, err := New(productResource(), Options{
		Adapter:  store,
		Registry: f.registry,
		Cache:    cache.NewQueryCache(backend, time.Minute, nil),
	})
	require.NoError(t, err)
	ctx := context.Background()

	rec, err := products.Create(ctx, Input{Data: map[string]interface{}{"name": "Lamp"}})
	require.NoError(t, err)

	_, err = products.List(ctx, Input{}, ListParams{})
	require.NoError(t, err)
	_, err = products.List(ctx, Input{}, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, store.finds)

	_, err = products.Update(ctx, Input{ID: fmt.Sprint(rec["id"]), Data: map[string]interface{}{"name": "Desk"}})
	require.NoError(t, err)

	page, err := products.List(ctx, Input{}, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, store.finds)
	assert.Equal(t, "Desk", page.Items[0]["name"])
}

func TestCache_HitMatchesMiss(t *testing.T) {
	f := newFixture(t)
	backend := cache.NewMemoryCache()
	defer backend.Close()
	products := f.products(t, productResource(), Options{Cache: cache.NewQueryCache(backend, time.Minute, nil)})
	ctx := context.Background()

	tag, err := f.tags.Create(ctx, Input{Data: map[string]interface{}{"name": "oak"}})
	require.NoError(t, err)
	released := time.Date(2024, 3, 4, 5, 6, 7, 800, time.UTC)
	rec, err := products.Create(ctx, Input{Data: map[string]interface{}{
		"name":     "Lamp",
		"price":    12.5,
		"released": released,
		"tags":     []interface{}{tag["id"]},
	}})
	require.NoError(t, err)

	read := Input{ID: fmt.Sprint(rec["id"]), Include: adapter.NewInclude("tags")}
	miss, err := products.Read(ctx, read)
	require.NoError(t, err)
	hit, err := products.Read(ctx, read)
	require.NoError(t, err)
	assert.Equal(t, miss, hit)
	require.IsType(t, time.Time{}, hit["released"])
	assert.True(t, released.Equal(hit["released"].(time.Time)))
	require.IsType(t, []adapter.Record{}, hit["tags"])
	assert.Len(t, hit["tags"], 1)

	missPage, err := products.List(ctx, Input{Include: adapter.NewInclude("tags")}, ListParams{})
	require.NoError(t, err)
	hitPage, err := products.List(ctx, Input{Include: adapter.NewInclude("tags")}, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, missPage, hitPage)
	require.IsType(t, []adapter.Record{}, hitPage.Items[0]["tags"])
}

func TestRelate(t *testing.T) {
	f := newFixture(t)
	products := f.products(t, productResource(), Options{})
	ctx := context.Background()

	var tagIDs []interface{}
	for _, name := range []string{"t1", "t2"} {
		tag, err := f.tags.Create(ctx, Input{Data: map[string]interface{}{"name": name}})
		require.NoError(t, err)
		tagIDs = append(tagIDs, tag["id"])
	}
	p, err := products.Create(ctx, Input{Data: map[string]interface{}{"name": "Desk"}})
	require.NoError(t, err)
	id := fmt.Sprint(p["id"])

	rec, err := products.Relate(ctx, Input{ID: id}, "tags", relationships.Set, tagIDs)
	require.NoError(t, err)
	assert.Len(t, rec["tags"], 2)

	rec, err = products.Relate(ctx, Input{ID: id}, "tags", relationships.Set, tagIDs)
	require.NoError(t, err)
	assert.Len(t, rec["tags"], 2)

	rec, err = products.Relate(ctx, Input{ID: id}, "tags", relationships.Remove, tagIDs[:1])
	require.NoError(t, err)
	tags := rec["tags"].([]adapter.Record)
	require.Len(t, tags, 1)
	assert.Equal(t, "t2", tags[0]["name"])

	_, err = products.Relate(ctx, Input{ID: id}, "owner", relationships.Add, nil)
	assertKind(t, err, ErrBadRequest)
	_, err = products.Relate(ctx, Input{ID: "missing"}, "tags", relationships.Add, tagIDs)
	assertKind(t, err, ErrNotFound)
}

func TestRead_IncludeAndSelect(t *testing.T) {
	f := newFixture(t)
	products := f.products(t, productResource(), Options{})
	ctx := context.Background()

	p, err := products.Create(ctx, Input{Data: map[string]interface{}{"name": "Desk", "price": float64(10)}})
	require.NoError(t, err)
	id := fmt.Sprint(p["id"])

	rec, err := products.Read(ctx, Input{ID: id, Select: []string{"name"}, Include: adapter.NewInclude("tags")})
	require.NoError(t, err)
	assert.Equal(t, adapter.Record{"id": id, "name": "Desk", "tags": []adapter.Record{}}, rec)

	_, err = products.Read(ctx, Input{ID: id, Include: adapter.NewInclude("owner")})
	assertKind(t, err, ErrBadRequest)
	_, err = products.Read(ctx, Input{ID: id, Select: []string{"secret"}})
	assertKind(t, err, ErrBadRequest)
}

func TestDisabledOperation(t *testing.T) {
	f := newFixture(t)
	res := productResource()
	res.Endpoints = map[hooks.Operation]bool{hooks.OpDelete: false}
	products := f.products(t, res, Options{})
	assert.False(t, res.Enabled(hooks.OpDelete))
	assert.True(t, res.Enabled(hooks.OpList))

	err := products.Delete(context.Background(), Input{ID: "x"})
	assertKind(t, err, ErrForbidden)
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))
	e := AsError(errors.New("disk full"))
	assert.Equal(t, KindAdapterFailure, e.Kind)
	assert.Equal(t, "disk full", e.Message)
	assert.Same(t, ErrNotFound, AsError(ErrNotFound))
}

type failingDeleteStore struct {
	*memory.Adapter
}

func (failingDeleteStore) Delete(ctx context.Context, model string, where []adapter.Where) error {
	return errors.New("disk full")
}

func TestDelete_StorageFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zap.ErrorLevel)
	products, err := New(productResource(), Options{
		Adapter:  failingDeleteStore{Adapter: f.store},
		Registry: f.registry,
		Logger:   zap.New(core),
	})
	require.NoError(t, err)
	ctx := context.Background()

	rec, err := products.Create(ctx, Input{Data: map[string]interface{}{"name": "Lamp"}})
	require.NoError(t, err)
	id := fmt.Sprint(rec["id"])

	err = products.Delete(ctx, Input{ID: id})
	perr := assertKind(t, err, ErrAdapterFailure)
	assert.Equal(t, "disk full", perr.Message)

	entries := logs.FilterMessage("storage call failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "delete", fields["operation"])
	assert.Equal(t, id, fields["id"])
	assert.Equal(t, "product", fields["resource"])
}
