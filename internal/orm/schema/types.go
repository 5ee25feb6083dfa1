// Package schema provides the type system used to declare resources: a validation
// schema tree (TypeSpec), the storage-level field descriptors inferred from it, and
// the relationship metadata connecting resources to each other.
package schema

import (
	"fmt"
	"strings"
)

// FieldType is the storage-level semantic type of a field
type FieldType int

const (
	TypeString FieldType = iota
	TypeNumber
	TypeBoolean
	TypeDate
	TypeJSON
)

// String returns the string representation of the field type
func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseFieldType converts a string to a FieldType
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(s) {
	case "string":
		return TypeString, nil
	case "number":
		return TypeNumber, nil
	case "boolean":
		return TypeBoolean, nil
	case "date":
		return TypeDate, nil
	case "json":
		return TypeJSON, nil
	default:
		return 0, fmt.Errorf("unknown field type: %s", s)
	}
}

// CascadeAction represents referential actions on foreign keys
type CascadeAction int

const (
	CascadeNoAction CascadeAction = iota
	CascadeRestrict
	CascadeCascade
	CascadeSetNull
)

// String returns the SQL representation of the cascade action
func (c CascadeAction) String() string {
	switch c {
	case CascadeRestrict:
		return "RESTRICT"
	case CascadeCascade:
		return "CASCADE"
	case CascadeSetNull:
		return "SET NULL"
	default:
		return "NO ACTION"
	}
}

// Reference describes a foreign key from a field to another model
type Reference struct {
	Model    string
	Field    string
	OnDelete CascadeAction
	OnUpdate CascadeAction
}

// FieldAttribute is the storage descriptor of a single field. A field with a
// default is still Required: storage never holds null for it.
type FieldAttribute struct {
	Type       FieldType
	Required   bool
	Unique     bool
	Default    interface{}
	HasDefault bool
	MaxLength  *int
	References *Reference
}

// Model is the storage view of a resource: its table and inferred fields plus
// the relationships declared on it.
type Model struct {
	Name          string
	Table         string
	Fields        map[string]*FieldAttribute
	Relationships map[string]*Relationship

	// Junction is set for models synthesized from belongsToMany relationships
	Junction bool
}

// NewModel creates a model with the table name defaulting to the model name
func NewModel(name string) *Model {
	return &Model{
		Name:          name,
		Table:         name,
		Fields:        make(map[string]*FieldAttribute),
		Relationships: make(map[string]*Relationship),
	}
}

// Field returns the attribute of a field, if declared
func (m *Model) Field(name string) (*FieldAttribute, bool) {
	f, ok := m.Fields[name]
	return f, ok
}

// Relationship returns the named relationship, if declared
func (m *Model) Relationship(name string) (*Relationship, bool) {
	r, ok := m.Relationships[name]
	return r, ok
}
