// Package relationships attaches related records to query results. Resolution
// is depth-bounded: every nested step spends one unit of a budget carried
// through the call, so self-referential graphs terminate without shared state.
package relationships

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/schema"
)

// Resolver resolves includes against a storage adapter
type Resolver struct {
	adapter  adapter.Adapter
	registry *schema.Registry
	logger   *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger logs every batch at debug level
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a resolver
func NewResolver(a adapter.Adapter, registry *schema.Registry, opts ...Option) *Resolver {
	r := &Resolver{
		adapter:  a,
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the registry relationships are looked up in
func (r *Resolver) Registry() *schema.Registry {
	return r.registry
}

// Resolve returns a copy of record with the requested relationships attached
func (r *Resolver) Resolve(ctx context.Context, model string, record adapter.Record, include *adapter.Include) (adapter.Record, error) {
	if record == nil {
		return nil, nil
	}
	out, err := r.ResolveMany(ctx, model, []adapter.Record{record}, include)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// ResolveMany returns copies of records with the requested relationships
// attached. One query is issued per relationship per level.
func (r *Resolver) ResolveMany(ctx context.Context, model string, records []adapter.Record, include *adapter.Include) ([]adapter.Record, error) {
	out := make([]adapter.Record, len(records))
	for i, rec := range records {
		out[i] = copyRecord(rec)
	}
	if include.Empty() || len(out) == 0 {
		return out, nil
	}
	if err := r.resolveLevel(ctx, model, out, include, include.Budget(), true); err != nil {
		return nil, err
	}
	return out, nil
}

// DefaultInclude returns the relationships of model flagged to be included by default
func (r *Resolver) DefaultInclude(model string) *adapter.Include {
	rels, err := r.registry.GetRelationships(model)
	if err != nil {
		return nil
	}
	inc := adapter.NewInclude()
	for name, rel := range rels {
		if rel.IncludeByDefault {
			inc.Add(name)
		}
	}
	if inc.Empty() {
		return nil
	}
	return inc
}

// resolveLevel attaches every relationship named by inc to records. expand is
// false inside a synthesized self-referential chain so the chain is not
// restarted at its last link.
func (r *Resolver) resolveLevel(ctx context.Context, model string, records []adapter.Record, inc *adapter.Include, budget int, expand bool) error {
	if budget <= 0 || inc.Empty() || len(records) == 0 {
		return nil
	}

	for _, name := range inc.Names() {
		rel, err := r.registry.GetRelationship(model, name)
		if err != nil {
			return fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, model, name)
		}

		child := inc.Relations[name]
		childBudget := budget - 1
		childExpand := expand
		if child == nil && expand && rel.IsSelfReferential(model) && rel.MaxDepth > 1 {
			child = chain(name, rel.MaxDepth-1)
			if rel.MaxDepth-1 > childBudget {
				childBudget = rel.MaxDepth - 1
			}
			childExpand = false
		}

		attached, err := r.loadRelationship(ctx, records, rel)
		if err != nil {
			return fmt.Errorf("failed to load relationship %s: %w", name, err)
		}

		if err := r.resolveLevel(ctx, rel.Target, attached, child, childBudget, childExpand); err != nil {
			return err
		}
	}
	return nil
}

// loadRelationship attaches one relationship and returns the attached records
func (r *Resolver) loadRelationship(ctx context.Context, records []adapter.Record, rel *schema.Relationship) ([]adapter.Record, error) {
	r.logger.Debug("resolving relationship",
		zap.String("relationship", rel.Name),
		zap.String("type", rel.Type.String()),
		zap.String("target", rel.Target),
		zap.Int("records", len(records)))

	switch rel.Type {
	case schema.RelationshipBelongsTo:
		return r.loadBelongsTo(ctx, records, rel)
	case schema.RelationshipHasOne:
		return r.loadHasOne(ctx, records, rel)
	case schema.RelationshipHasMany:
		return r.loadHasMany(ctx, records, rel)
	case schema.RelationshipBelongsToMany:
		return r.loadBelongsToMany(ctx, records, rel)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidRelationType, rel.Type)
	}
}

// chain builds {name: {name: ...}} with the given number of levels
func chain(name string, levels int) *adapter.Include {
	inc := adapter.NewInclude(name)
	for i := 1; i < levels; i++ {
		inc = &adapter.Include{Relations: map[string]*adapter.Include{name: inc}}
	}
	return inc
}

func copyRecord(r adapter.Record) adapter.Record {
	if r == nil {
		return nil
	}
	out := make(adapter.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
