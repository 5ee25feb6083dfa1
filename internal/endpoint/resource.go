// Package endpoint turns a declared resource into its create, read, update,
// delete and list operations. Every operation runs the same staged pipeline:
// middleware, existence, before-hook, validation, authorization, id
// generation, rate limiting, storage, after-hook and audit.
package endpoint

import (
	"net/http"

	"github.com/armelgeek/better-query/internal/orm/hooks"
	"github.com/armelgeek/better-query/internal/orm/schema"
	"github.com/armelgeek/better-query/internal/security"
)

// PermissionFunc decides whether the request in ctx may proceed
type PermissionFunc func(ctx *hooks.Context) bool

// Ownership restricts records to the user whose id is stored in Field
type Ownership struct {
	Field    string
	Strategy security.OwnershipStrategy
	// AdminScopes bypass ownership under the flexible strategy; defaults to "admin"
	AdminScopes []string
}

// SearchStrategy selects how a search term matches a field
type SearchStrategy string

const (
	SearchContains   SearchStrategy = "contains"
	SearchStartsWith SearchStrategy = "startsWith"
	SearchExact      SearchStrategy = "exact"
)

// Search configures the list search parameter
type Search struct {
	Fields        []string
	Strategy      SearchStrategy
	CaseSensitive bool
}

// Hooks are the resource's lifecycle callbacks; nil entries are skipped
type Hooks struct {
	OnCreate    hooks.HookFunc
	OnUpdate    hooks.HookFunc
	OnDelete    hooks.HookFunc
	AfterCreate hooks.HookFunc
	AfterUpdate hooks.HookFunc
	AfterDelete hooks.HookFunc
	AfterRead   hooks.HookFunc
	AfterList   hooks.HookFunc
}

// CustomEndpoint is an extra route mounted next to the generated ones
type CustomEndpoint struct {
	Name    string
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Resource is the declarative description of one entity
type Resource struct {
	Name      string
	Schema    *schema.TypeSpec
	TableName string

	Relationships map[string]*schema.Relationship

	// Endpoints disables operations mapped to false; missing entries are enabled
	Endpoints   map[hooks.Operation]bool
	Permissions map[hooks.Operation]PermissionFunc
	Scopes      map[hooks.Operation][]string

	Ownership    *Ownership
	Sanitization *security.Sanitization
	Hooks        Hooks
	Search       *Search

	CustomEndpoints []CustomEndpoint
}

// Enabled reports whether op is exposed
func (r *Resource) Enabled(op hooks.Operation) bool {
	enabled, ok := r.Endpoints[op]
	return !ok || enabled
}

// Model infers the storage model of the resource
func (r *Resource) Model() (*schema.Model, error) {
	fields, err := schema.InferFields(r.Schema)
	if err != nil {
		return nil, err
	}
	model := schema.NewModel(r.Name)
	if r.TableName != "" {
		model.Table = r.TableName
	}
	model.Fields = fields
	for name, rel := range r.Relationships {
		model.Relationships[name] = rel
	}
	return model, nil
}

// Validate checks the resource declaration; it is run once by New
func (r *Resource) Validate() error {
	if r.Name == "" {
		return configError("", "resource name is required")
	}
	if r.Schema == nil || r.Schema.Kind != schema.KindObject {
		return configError(r.Name, "schema must be an object")
	}
	if r.Ownership != nil {
		if r.Ownership.Field == "" {
			return configError(r.Name, "ownership field is required")
		}
		if _, ok := r.Schema.Fields[r.Ownership.Field]; !ok {
			return configError(r.Name, "ownership field %q is not declared", r.Ownership.Field)
		}
		switch r.Ownership.Strategy {
		case "", security.Strict, security.Flexible:
		default:
			return configError(r.Name, "unknown ownership strategy %q", r.Ownership.Strategy)
		}
	}
	if r.Search != nil {
		for _, f := range r.Search.Fields {
			if _, ok := r.Schema.Fields[f]; !ok {
				return configError(r.Name, "search field %q is not declared", f)
			}
		}
		switch r.Search.Strategy {
		case "", SearchContains, SearchStartsWith, SearchExact:
		default:
			return configError(r.Name, "unknown search strategy %q", r.Search.Strategy)
		}
	}
	for _, ce := range r.CustomEndpoints {
		if ce.Name == "" || ce.Path == "" || ce.Handler == nil {
			return configError(r.Name, "custom endpoint requires a name, path and handler")
		}
	}
	return nil
}

func (r *Resource) ownershipStrategy() security.OwnershipStrategy {
	if r.Ownership.Strategy == "" {
		return security.Strict
	}
	return r.Ownership.Strategy
}

// registerHooks adds the resource's callbacks to an executor, ahead of plugin hooks
func (r *Resource) registerHooks(e *hooks.Executor) {
	for _, h := range []struct {
		t  hooks.HookType
		fn hooks.HookFunc
	}{
		{hooks.BeforeCreate, r.Hooks.OnCreate},
		{hooks.BeforeUpdate, r.Hooks.OnUpdate},
		{hooks.BeforeDelete, r.Hooks.OnDelete},
		{hooks.AfterCreate, r.Hooks.AfterCreate},
		{hooks.AfterUpdate, r.Hooks.AfterUpdate},
		{hooks.AfterDelete, r.Hooks.AfterDelete},
		{hooks.AfterRead, r.Hooks.AfterRead},
		{hooks.AfterList, r.Hooks.AfterList},
	} {
		if h.fn != nil {
			e.RegisterFunc(h.t, r.Name, h.fn)
		}
	}
}
