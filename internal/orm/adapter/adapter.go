// Package adapter defines the storage contract every backend satisfies, the
// typed query model passed across it and the value marshalling performed at
// the boundary.
package adapter

import (
	"context"
	"errors"

	"github.com/armelgeek/better-query/internal/orm/schema"
)

// Record is a single stored row keyed by field name
type Record = map[string]interface{}

// Common storage errors
var (
	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")

	// ErrUnknownModel is returned when an operation names an unregistered model
	ErrUnknownModel = errors.New("unknown model")

	// ErrInvalidCondition is returned when a Where condition cannot be evaluated
	ErrInvalidCondition = errors.New("invalid condition")
)

// Query describes a findMany call
type Query struct {
	Where   []Where
	Include *Include
	OrderBy []OrderBy
	Limit   int
	Offset  int
	Select  []string
}

// OrderBy sorts results by a field
type OrderBy struct {
	Field string
	Desc  bool
}

// Adapter is the storage contract. FindFirst returns (nil, nil) when nothing
// matches. Update returns the first updated record, or nil when nothing matched.
// Include is advisory: relationship attachment is performed by the resolver
// unless an adapter resolves it natively.
type Adapter interface {
	Create(ctx context.Context, model string, data Record) (Record, error)
	FindFirst(ctx context.Context, model string, where []Where, include *Include) (Record, error)
	FindMany(ctx context.Context, model string, q Query) ([]Record, error)
	Update(ctx context.Context, model string, where []Where, data Record) (Record, error)
	Delete(ctx context.Context, model string, where []Where) error
	Count(ctx context.Context, model string, where []Where) (int, error)
}

// RelationWrite is a set of target ids to associate through a belongsToMany relationship
type RelationWrite struct {
	Relationship *schema.Relationship
	IDs          []interface{}
}

// RelationalWriter writes a record and replaces its many-to-many associations atomically
type RelationalWriter interface {
	CreateWithRelations(ctx context.Context, model string, data Record, relations []RelationWrite) (Record, error)
	UpdateWithRelations(ctx context.Context, model string, where []Where, data Record, relations []RelationWrite) (Record, error)
}

// ReferenceValidator checks foreign key targets exist before a write
type ReferenceValidator interface {
	ValidateReferences(ctx context.Context, model string, data Record) error
}

// SchemaCreator creates storage for models (migration)
type SchemaCreator interface {
	CreateSchema(ctx context.Context, models []*schema.Model) error
}

// Transactor runs fn against an adapter bound to a single transaction
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Adapter) error) error
}

// RegistryBinder is implemented by adapters that resolve table names and field
// types through the model registry. BindRegistry is called once at startup,
// before any operation runs.
type RegistryBinder interface {
	BindRegistry(registry *schema.Registry)
}

// ReferenceError reports a foreign key value with no matching target
type ReferenceError struct {
	Field string
	Model string
	Value interface{}
}

func (e *ReferenceError) Error() string {
	return "referenced " + e.Model + " does not exist for field " + e.Field
}

// Unwrap lets callers match ErrForeignKeyViolation
func (e *ReferenceError) Unwrap() error {
	return ErrForeignKeyViolation
}

// CheckReferences verifies every non-null reference field in data points at an
// existing record. Adapters implementing ReferenceValidator delegate here.
func CheckReferences(ctx context.Context, a Adapter, fields map[string]*schema.FieldAttribute, data Record) error {
	for name, attr := range fields {
		if attr.References == nil {
			continue
		}
		value, ok := data[name]
		if !ok || value == nil {
			continue
		}
		n, err := a.Count(ctx, attr.References.Model, []Where{Eq(attr.References.Field, value)})
		if err != nil {
			return err
		}
		if n == 0 {
			return &ReferenceError{Field: name, Model: attr.References.Model, Value: value}
		}
	}
	return nil
}
