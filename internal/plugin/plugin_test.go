package plugin

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armelgeek/better-query/internal/endpoint"
	"github.com/armelgeek/better-query/internal/orm/hooks"
	"github.com/armelgeek/better-query/internal/orm/schema"
)

type testPlugin struct {
	name      string
	endpoints []Endpoint
	hooks     []ResourceHook
	models    []*schema.Model
	initErr   error
	inits     int
}

func (p *testPlugin) Name() string { return p.name }
func (p *testPlugin) Endpoints() []Endpoint { return p.endpoints }
func (p *testPlugin) Hooks() []ResourceHook { return p.hooks }
func (p *testPlugin) Models() []*schema.Model { return p.models }
func (p *testPlugin) Middleware() []hooks.Middleware { return []hooks.Middleware{func(*hooks.Context) error { return nil }} }
func (p *testPlugin) Init(ctx context.Context) error {
	p.inits++
	return p.initErr
}

func noop(w http.ResponseWriter, r *http.Request) {}

func TestManager_Register(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.Register(&testPlugin{name: "health"}))

	err := m.Register(&testPlugin{name: "health"})
	var cerr *endpoint.ConfigurationError
	assert.True(t, errors.As(err, &cerr))

	assert.Error(t, m.Register(&testPlugin{}))
	assert.Len(t, m.Plugins(), 1)
	assert.Len(t, m.Middleware(), 1)
}

func TestManager_Endpoints(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.Register(&testPlugin{name: "a", endpoints: []Endpoint{{Name: "health", Path: "/health", Handler: noop}}}))
	require.NoError(t, m.Register(&testPlugin{name: "b", endpoints: []Endpoint{{Name: "stats", Method: http.MethodGet, Path: "/stats", Handler: noop}}}))

	eps, err := m.Endpoints()
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, http.MethodGet, eps[0].Method)

	require.NoError(t, m.Register(&testPlugin{name: "c", endpoints: []Endpoint{{Name: "health", Path: "/other", Handler: noop}}}))
	_, err = m.Endpoints()
	var cerr *endpoint.ConfigurationError
	assert.True(t, errors.As(err, &cerr))

	m2 := NewManager(nil)
	require.NoError(t, m2.Register(&testPlugin{name: "a", endpoints: []Endpoint{{Name: "x", Path: "/stats", Handler: noop}}}))
	require.NoError(t, m2.Register(&testPlugin{name: "b", endpoints: []Endpoint{{Name: "y", Path: "/stats", Handler: noop}}}))
	_, err = m2.Endpoints()
	assert.Error(t, err)
}

func TestManager_ApplyHooks(t *testing.T) {
	var order []string
	record := func(name string) hooks.HookFunc {
		return func(*hooks.Context) error {
			order = append(order, name)
			return nil
		}
	}

	m := NewManager(nil)
	require.NoError(t, m.Register(&testPlugin{name: "audit", hooks: []ResourceHook{
		{Type: hooks.BeforeCreate, Fn: record("plugin-all")},
		{Resource: "post", Type: hooks.BeforeCreate, Fn: record("plugin-post")},
		{Resource: "tag", Type: hooks.BeforeCreate, Fn: record("plugin-tag")},
	}}))

	executor := hooks.NewExecutor()
	executor.RegisterFunc(hooks.BeforeCreate, "post", record("resource"))
	assert.Equal(t, 2, m.ApplyHooks("post", executor))

	require.NoError(t, executor.RunBefore(hooks.NewContext(context.Background(), "post", hooks.OpCreate), hooks.BeforeCreate))
	assert.Equal(t, []string{"resource", "plugin-all", "plugin-post"}, order)
}

func TestManager_InitAndModels(t *testing.T) {
	p := &testPlugin{name: "a", models: []*schema.Model{schema.NewModel("plugin_settings")}}
	m := NewManager(nil)
	require.NoError(t, m.Register(p))
	require.NoError(t, m.Init(context.Background()))
	require.NoError(t, m.Init(context.Background()))
	assert.Equal(t, 1, p.inits)
	assert.Len(t, m.Models(), 1)

	broken := NewManager(nil)
	require.NoError(t, broken.Register(&testPlugin{name: "b", initErr: errors.New("boom")}))
	assert.ErrorContains(t, broken.Init(context.Background()), "boom")
}
