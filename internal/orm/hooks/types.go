package hooks

import (
	"sync"
)

// HookType identifies a lifecycle point of an operation
type HookType int

const (
	BeforeCreate HookType = iota
	BeforeUpdate
	BeforeDelete
	AfterCreate
	AfterUpdate
	AfterDelete
	AfterRead
	AfterList
)

// String returns the declaration name of the hook type
func (h HookType) String() string {
	switch h {
	case BeforeCreate:
		return "onCreate"
	case BeforeUpdate:
		return "onUpdate"
	case BeforeDelete:
		return "onDelete"
	case AfterCreate:
		return "afterCreate"
	case AfterUpdate:
		return "afterUpdate"
	case AfterDelete:
		return "afterDelete"
	case AfterRead:
		return "afterRead"
	case AfterList:
		return "afterList"
	default:
		return "unknown"
	}
}

// IsBefore reports whether hooks of this type run before the storage call
func (h HookType) IsBefore() bool {
	return h == BeforeCreate || h == BeforeUpdate || h == BeforeDelete
}

// HookFunc is a lifecycle callback. Before-hooks may mutate ctx.Data; after-hooks
// see the stored result in ctx.Result.
type HookFunc func(ctx *Context) error

// Hook represents a registered lifecycle hook
type Hook struct {
	Type HookType
	// Name identifies the hook in logs, typically the resource or plugin that declared it
	Name string
	Fn   HookFunc
	// Async runs an after-hook on the queue once the response is produced
	Async bool
}

// Registry holds hooks per type in registration order
type Registry struct {
	hooks map[HookType][]*Hook
	mu    sync.RWMutex
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		hooks: make(map[HookType][]*Hook),
	}
}

// Register appends a hook
func (r *Registry) Register(hookType HookType, hook *Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hook.Type = hookType
	r.hooks[hookType] = append(r.hooks[hookType], hook)
}

// GetHooks returns the hooks of a type in registration order
func (r *Registry) GetHooks(hookType HookType) []*Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Hook(nil), r.hooks[hookType]...)
}

// HasHooks returns true if there are any hooks registered for the given type
func (r *Registry) HasHooks(hookType HookType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[hookType]) > 0
}

// Middleware runs first in every pipeline run and may set the user, scopes or
// any other context field. A returned error aborts the request.
type Middleware func(ctx *Context) error
