package relationships

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/schema"
)

// ManyToManyOp is a mutation of a belongsToMany relationship
type ManyToManyOp int

const (
	// Set replaces every link of the source with the given ids
	Set ManyToManyOp = iota
	// Add links the given ids, skipping existing links
	Add
	// Remove unlinks the given ids
	Remove
)

// String returns the wire name of the operation
func (op ManyToManyOp) String() string {
	switch op {
	case Set:
		return "set"
	case Add:
		return "add"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}

// ParseManyToManyOp converts a wire name to a ManyToManyOp
func ParseManyToManyOp(s string) (ManyToManyOp, error) {
	switch s {
	case "set":
		return Set, nil
	case "add":
		return Add, nil
	case "remove":
		return Remove, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidOperation, s)
}

// ManageManyToMany mutates the junction rows linking sourceID to ids
func (r *Resolver) ManageManyToMany(ctx context.Context, model, relation string, sourceID interface{}, op ManyToManyOp, ids []interface{}) error {
	rel, err := r.registry.GetRelationship(model, relation)
	if err != nil {
		return fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, model, relation)
	}
	if rel.Type != schema.RelationshipBelongsToMany {
		return fmt.Errorf("%w: %s is %s, not belongsToMany", ErrInvalidRelationType, relation, rel.Type)
	}

	r.logger.Debug("managing many-to-many",
		zap.String("model", model),
		zap.String("relationship", relation),
		zap.String("operation", op.String()),
		zap.Int("ids", len(ids)))

	switch op {
	case Set:
		if tx, ok := r.adapter.(adapter.Transactor); ok {
			return tx.WithTx(ctx, func(ctx context.Context, a adapter.Adapter) error {
				return setLinks(ctx, a, rel, sourceID, ids)
			})
		}
		return setLinks(ctx, r.adapter, rel, sourceID, ids)
	case Add:
		return addLinks(ctx, r.adapter, rel, sourceID, ids)
	case Remove:
		if len(ids) == 0 {
			return nil
		}
		return r.adapter.Delete(ctx, rel.Through, []adapter.Where{
			adapter.Eq(rel.LocalKey, sourceID),
			adapter.In(rel.TargetKey, ids),
		})
	}
	return fmt.Errorf("%w: %d", ErrInvalidOperation, op)
}

func setLinks(ctx context.Context, a adapter.Adapter, rel *schema.Relationship, sourceID interface{}, ids []interface{}) error {
	if err := a.Delete(ctx, rel.Through, []adapter.Where{adapter.Eq(rel.LocalKey, sourceID)}); err != nil {
		return err
	}
	return insertLinks(ctx, a, rel, sourceID, ids, nil)
}

func addLinks(ctx context.Context, a adapter.Adapter, rel *schema.Relationship, sourceID interface{}, ids []interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := a.FindMany(ctx, rel.Through, adapter.Query{
		Where: []adapter.Where{
			adapter.Eq(rel.LocalKey, sourceID),
			adapter.In(rel.TargetKey, ids),
		},
	})
	if err != nil {
		return err
	}
	existing := make(map[string]bool, len(rows))
	for _, row := range rows {
		existing[key(row[rel.TargetKey])] = true
	}
	return insertLinks(ctx, a, rel, sourceID, ids, existing)
}

// insertLinks creates one junction row per distinct id not already in skip
func insertLinks(ctx context.Context, a adapter.Adapter, rel *schema.Relationship, sourceID interface{}, ids []interface{}, skip map[string]bool) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		k := key(id)
		if seen[k] || skip[k] {
			continue
		}
		seen[k] = true
		row := adapter.Record{
			"id":          uuid.New().String(),
			rel.LocalKey:  sourceID,
			rel.TargetKey: id,
		}
		if _, err := a.Create(ctx, rel.Through, row); err != nil {
			return fmt.Errorf("link %s %v: %w", rel.Target, id, err)
		}
	}
	return nil
}
