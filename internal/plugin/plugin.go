// Package plugin lets extensions contribute endpoints, models, hooks and
// middleware to every resource.
package plugin

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/endpoint"
	"github.com/armelgeek/better-query/internal/orm/hooks"
	"github.com/armelgeek/better-query/internal/orm/schema"
)

// Plugin is the only required method; capabilities are the optional interfaces below
type Plugin interface {
	Name() string
}

// Initializer is called once at startup
type Initializer interface {
	Init(ctx context.Context) error
}

// Endpoint is an extra route contributed by a plugin
type Endpoint struct {
	Name    string
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// EndpointProvider contributes routes
type EndpointProvider interface {
	Endpoints() []Endpoint
}

// SchemaProvider contributes models created by migration
type SchemaProvider interface {
	Models() []*schema.Model
}

// ResourceHook is a hook contributed for one resource, or every resource when
// Resource is empty
type ResourceHook struct {
	Resource string
	Type     hooks.HookType
	Fn       hooks.HookFunc
	Async    bool
}

// HookProvider contributes hooks
type HookProvider interface {
	Hooks() []ResourceHook
}

// MiddlewareProvider contributes pipeline middleware, run after the configured middleware
type MiddlewareProvider interface {
	Middleware() []hooks.Middleware
}

// Manager holds registered plugins in registration order
type Manager struct {
	mu      sync.RWMutex
	plugins []Plugin
	names   map[string]bool
	initted bool
	logger  *zap.Logger
}

// NewManager creates an empty plugin manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		names:  make(map[string]bool),
		logger: logger.Named("plugin"),
	}
}

// Register adds a plugin; names must be unique
func (m *Manager) Register(p Plugin) error {
	if p == nil || p.Name() == "" {
		return &endpoint.ConfigurationError{Reason: "plugin name is required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.names[p.Name()] {
		return &endpoint.ConfigurationError{Reason: fmt.Sprintf("plugin %s is already registered", p.Name())}
	}
	m.names[p.Name()] = true
	m.plugins = append(m.plugins, p)
	m.logger.Debug("plugin registered", zap.String("plugin", p.Name()))
	return nil
}

// Plugins returns the registered plugins
func (m *Manager) Plugins() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Plugin(nil), m.plugins...)
}

// Init initializes every plugin once, in registration order
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initted {
		return nil
	}
	for _, p := range m.plugins {
		initializer, ok := p.(Initializer)
		if !ok {
			continue
		}
		if err := initializer.Init(ctx); err != nil {
			return fmt.Errorf("plugin %s: init failed: %w", p.Name(), err)
		}
	}
	m.initted = true
	return nil
}

// Endpoints merges the routes of every plugin. Two routes with the same name,
// or the same method and path, are a configuration error.
func (m *Manager) Endpoints() ([]Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Endpoint
	byName := make(map[string]string)
	byRoute := make(map[string]string)
	for _, p := range m.plugins {
		provider, ok := p.(EndpointProvider)
		if !ok {
			continue
		}
		for _, ep := range provider.Endpoints() {
			if ep.Name == "" || ep.Path == "" || ep.Handler == nil {
				return nil, &endpoint.ConfigurationError{Reason: fmt.Sprintf("plugin %s: endpoint requires a name, path and handler", p.Name())}
			}
			if ep.Method == "" {
				ep.Method = http.MethodGet
			}
			if owner, dup := byName[ep.Name]; dup {
				return nil, &endpoint.ConfigurationError{Reason: fmt.Sprintf("endpoint %s is declared by plugins %s and %s", ep.Name, owner, p.Name())}
			}
			route := ep.Method + " " + ep.Path
			if owner, dup := byRoute[route]; dup {
				return nil, &endpoint.ConfigurationError{Reason: fmt.Sprintf("route %s is declared by plugins %s and %s", route, owner, p.Name())}
			}
			byName[ep.Name] = p.Name()
			byRoute[route] = p.Name()
			out = append(out, ep)
		}
	}
	return out, nil
}

// Models returns the models contributed by plugins
func (m *Manager) Models() []*schema.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*schema.Model
	for _, p := range m.plugins {
		if provider, ok := p.(SchemaProvider); ok {
			out = append(out, provider.Models()...)
		}
	}
	return out
}

// Middleware returns the pipeline middleware contributed by plugins
func (m *Manager) Middleware() []hooks.Middleware {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []hooks.Middleware
	for _, p := range m.plugins {
		if provider, ok := p.(MiddlewareProvider); ok {
			out = append(out, provider.Middleware()...)
		}
	}
	return out
}

// ApplyHooks registers the plugin hooks targeting resource on its executor.
// They run after the resource's own hooks. It returns the number registered.
func (m *Manager) ApplyHooks(resource string, executor *hooks.Executor) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.plugins {
		provider, ok := p.(HookProvider)
		if !ok {
			continue
		}
		for _, h := range provider.Hooks() {
			if h.Fn == nil || (h.Resource != "" && h.Resource != resource) {
				continue
			}
			executor.Register(h.Type, &hooks.Hook{Name: p.Name(), Fn: h.Fn, Async: h.Async})
			n++
		}
	}
	return n
}
