package schema

import (
	"fmt"
)

// RelationType represents the type of relationship between models
type RelationType int

const (
	RelationshipBelongsTo RelationType = iota
	RelationshipHasOne
	RelationshipHasMany
	RelationshipBelongsToMany
)

// String returns the string representation of the relation type
func (r RelationType) String() string {
	switch r {
	case RelationshipBelongsTo:
		return "belongsTo"
	case RelationshipHasOne:
		return "hasOne"
	case RelationshipHasMany:
		return "hasMany"
	case RelationshipBelongsToMany:
		return "belongsToMany"
	default:
		return "unknown"
	}
}

// Relationship describes how a model relates to a target model. It is pure data.
//
// Key usage per type:
//   - belongsTo: ForeignKey is the local field, TargetKey the target field (default "id").
//   - hasOne/hasMany: ForeignKey is the field on the target, LocalKey the local field (default "id").
//   - belongsToMany: Through is the junction table, LocalKey the junction column holding the
//     source id and TargetKey the junction column holding the target id.
type Relationship struct {
	Name       string
	Type       RelationType
	Target     string
	ForeignKey string
	TargetKey  string
	LocalKey   string
	Through    string

	// OrderBy sorts hasMany and belongsToMany results by a target field
	OrderBy string
	// IncludeByDefault attaches the relationship when a request names no includes
	IncludeByDefault bool
	// MaxDepth overrides the traversal budget of self-referential relationships
	MaxDepth int
}

// BelongsTo declares a belongsTo relationship keyed by a local foreign key
func BelongsTo(target, foreignKey string) *Relationship {
	return &Relationship{Type: RelationshipBelongsTo, Target: target, ForeignKey: foreignKey}
}

// HasOne declares a hasOne relationship keyed by a foreign key on the target
func HasOne(target, foreignKey string) *Relationship {
	return &Relationship{Type: RelationshipHasOne, Target: target, ForeignKey: foreignKey}
}

// HasMany declares a hasMany relationship keyed by a foreign key on the target
func HasMany(target, foreignKey string) *Relationship {
	return &Relationship{Type: RelationshipHasMany, Target: target, ForeignKey: foreignKey}
}

// BelongsToMany declares a many-to-many relationship through a junction table
func BelongsToMany(target, through, localKey, targetKey string) *Relationship {
	return &Relationship{
		Type:      RelationshipBelongsToMany,
		Target:    target,
		Through:   through,
		LocalKey:  localKey,
		TargetKey: targetKey,
	}
}

// IsSelfReferential reports whether the relationship points back at its own model
func (r *Relationship) IsSelfReferential(source string) bool {
	return r.Target == source
}

// Normalized returns a copy with the name set and key defaults filled in
func (r *Relationship) Normalized(source, name string) *Relationship {
	cp := *r
	cp.Name = name
	switch cp.Type {
	case RelationshipBelongsTo:
		if cp.ForeignKey == "" {
			cp.ForeignKey = name + "Id"
		}
		if cp.TargetKey == "" {
			cp.TargetKey = "id"
		}
	case RelationshipHasOne, RelationshipHasMany:
		if cp.ForeignKey == "" {
			cp.ForeignKey = source + "Id"
		}
		if cp.LocalKey == "" {
			cp.LocalKey = "id"
		}
	case RelationshipBelongsToMany:
		if cp.Through == "" {
			cp.Through = source + "_" + cp.Target
		}
		if cp.LocalKey == "" {
			cp.LocalKey = source + "Id"
		}
		if cp.TargetKey == "" {
			cp.TargetKey = cp.Target + "Id"
		}
	}
	return &cp
}

// Validate checks the relationship declaration for structural errors
func (r *Relationship) Validate() error {
	if r.Target == "" {
		return fmt.Errorf("relationship %s: target is required", r.Name)
	}
	if r.MaxDepth < 0 {
		return fmt.Errorf("relationship %s: max depth must not be negative", r.Name)
	}
	switch r.Type {
	case RelationshipBelongsTo, RelationshipHasOne, RelationshipHasMany:
		if r.ForeignKey == "" {
			return fmt.Errorf("relationship %s: foreign key is required", r.Name)
		}
	case RelationshipBelongsToMany:
		if r.Through == "" || r.LocalKey == "" || r.TargetKey == "" {
			return fmt.Errorf("relationship %s: junction table and keys are required", r.Name)
		}
		if r.LocalKey == r.TargetKey {
			return fmt.Errorf("relationship %s: junction keys must differ", r.Name)
		}
	default:
		return fmt.Errorf("relationship %s: invalid relation type %d", r.Name, r.Type)
	}
	return nil
}

// JunctionModel synthesizes the model of a belongsToMany junction table
func (r *Relationship) JunctionModel(source string) *Model {
	m := NewModel(r.Through)
	m.Junction = true
	m.Fields["id"] = &FieldAttribute{Type: TypeString, Required: true, Unique: true}
	m.Fields[r.LocalKey] = &FieldAttribute{
		Type:       TypeString,
		Required:   true,
		References: &Reference{Model: source, Field: "id", OnDelete: CascadeCascade},
	}
	m.Fields[r.TargetKey] = &FieldAttribute{
		Type:       TypeString,
		Required:   true,
		References: &Reference{Model: r.Target, Field: "id", OnDelete: CascadeCascade},
	}
	return m
}
