package schema

import (
	"fmt"
)

// IntrospectionError is returned when a schema cannot be turned into field
// descriptors. It is fatal at registration time.
type IntrospectionError struct {
	Field  string
	Reason string
}

func (e *IntrospectionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema introspection failed: %s", e.Reason)
	}
	return fmt.Sprintf("schema introspection failed for field %q: %s", e.Field, e.Reason)
}

// InferFields derives the storage descriptor of every field declared by an
// object schema.
func InferFields(spec *TypeSpec) (map[string]*FieldAttribute, error) {
	if spec == nil {
		return nil, &IntrospectionError{Reason: "schema is nil"}
	}
	if spec.Kind != KindObject {
		return nil, &IntrospectionError{Reason: fmt.Sprintf("expected object schema, got %s", spec.Kind)}
	}

	fields := make(map[string]*FieldAttribute, len(spec.Fields))
	for name, fieldSpec := range spec.Fields {
		attr, err := inferField(name, fieldSpec)
		if err != nil {
			return nil, err
		}
		fields[name] = attr
	}
	return fields, nil
}

func inferField(name string, spec *TypeSpec) (*FieldAttribute, error) {
	if spec == nil {
		return nil, &IntrospectionError{Field: name, Reason: "type is nil"}
	}

	attr := &FieldAttribute{Required: true}
	cur := spec
	for cur.Kind.IsWrapper() {
		switch cur.Kind {
		case KindOptional, KindNullable:
			attr.Required = false
		case KindDefault:
			// the outermost default wins
			if !attr.HasDefault {
				attr.Default = cur.Default
				attr.HasDefault = true
			}
		}
		if cur.Inner == nil {
			return nil, &IntrospectionError{Field: name, Reason: fmt.Sprintf("%s wrapper has no inner type", cur.Kind)}
		}
		cur = cur.Inner
	}

	switch cur.Kind {
	case KindString:
		attr.Type = TypeString
		if cur.MaxLength != nil {
			n := *cur.MaxLength
			attr.MaxLength = &n
		}
	case KindNumber:
		attr.Type = TypeNumber
	case KindBoolean:
		attr.Type = TypeBoolean
	case KindDate:
		attr.Type = TypeDate
	case KindArray, KindObject, KindRecord:
		attr.Type = TypeJSON
	default:
		return nil, &IntrospectionError{Field: name, Reason: fmt.Sprintf("unsupported kind %s", cur.Kind)}
	}

	attr.Unique = cur.Unique
	if cur.Ref != nil {
		ref := *cur.Ref
		if ref.Field == "" {
			ref.Field = "id"
		}
		attr.References = &ref
	}
	return attr, nil
}
