package schema

// Kind identifies a node of the validation schema tree
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBoolean
	KindDate
	KindArray
	KindObject
	KindRecord
	KindOptional
	KindNullable
	KindDefault
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindRecord:
		return "record"
	case KindOptional:
		return "optional"
	case KindNullable:
		return "nullable"
	case KindDefault:
		return "default"
	default:
		return "invalid"
	}
}

// IsWrapper reports whether the kind wraps an inner type
func (k Kind) IsWrapper() bool {
	return k == KindOptional || k == KindNullable || k == KindDefault
}

// TypeSpec is a node of a resource's validation schema. Wrapper kinds
// (optional, nullable, default) hold the wrapped type in Inner; arrays hold
// their element type in Inner and records their value type.
type TypeSpec struct {
	Kind    Kind
	Inner   *TypeSpec
	Fields  map[string]*TypeSpec
	Default interface{}

	// Constraints on the base type
	MinLength *int
	MaxLength *int
	Min       *float64
	Max       *float64
	Integer   bool
	Format    string
	Enum      []string

	// Storage hints
	Unique bool
	Ref    *Reference
}

// String creates a string type
func String() *TypeSpec { return &TypeSpec{Kind: KindString} }

// Number creates a floating point number type
func Number() *TypeSpec { return &TypeSpec{Kind: KindNumber} }

// Int creates a number type restricted to integral values
func Int() *TypeSpec { return &TypeSpec{Kind: KindNumber, Integer: true} }

// Boolean creates a boolean type
func Boolean() *TypeSpec { return &TypeSpec{Kind: KindBoolean} }

// Date creates a date type
func Date() *TypeSpec { return &TypeSpec{Kind: KindDate} }

// Array creates an array type of the given element
func Array(elem *TypeSpec) *TypeSpec { return &TypeSpec{Kind: KindArray, Inner: elem} }

// Record creates a keyed map type with values of the given type
func Record(value *TypeSpec) *TypeSpec { return &TypeSpec{Kind: KindRecord, Inner: value} }

// Object creates an object type with the given fields
func Object(fields map[string]*TypeSpec) *TypeSpec {
	return &TypeSpec{Kind: KindObject, Fields: fields}
}

// Optional marks the value as omittable
func (t *TypeSpec) Optional() *TypeSpec { return &TypeSpec{Kind: KindOptional, Inner: t} }

// Nullable marks the value as accepting null
func (t *TypeSpec) Nullable() *TypeSpec { return &TypeSpec{Kind: KindNullable, Inner: t} }

// WithDefault supplies a value used when the field is absent on create
func (t *TypeSpec) WithDefault(v interface{}) *TypeSpec {
	return &TypeSpec{Kind: KindDefault, Inner: t, Default: v}
}

// MinLen constrains the minimum string length
func (t *TypeSpec) MinLen(n int) *TypeSpec {
	return t.modifyBase(func(b *TypeSpec) { b.MinLength = &n })
}

// MaxLen constrains the maximum string length
func (t *TypeSpec) MaxLen(n int) *TypeSpec {
	return t.modifyBase(func(b *TypeSpec) { b.MaxLength = &n })
}

// Gte constrains a number to be at least v
func (t *TypeSpec) Gte(v float64) *TypeSpec {
	return t.modifyBase(func(b *TypeSpec) { b.Min = &v })
}

// Lte constrains a number to be at most v
func (t *TypeSpec) Lte(v float64) *TypeSpec {
	return t.modifyBase(func(b *TypeSpec) { b.Max = &v })
}

// Email requires a string to be an email address
func (t *TypeSpec) Email() *TypeSpec {
	return t.modifyBase(func(b *TypeSpec) { b.Format = "email" })
}

// URL requires a string to be an absolute URL
func (t *TypeSpec) URL() *TypeSpec {
	return t.modifyBase(func(b *TypeSpec) { b.Format = "url" })
}

// UUID requires a string to be a UUID
func (t *TypeSpec) UUID() *TypeSpec {
	return t.modifyBase(func(b *TypeSpec) { b.Format = "uuid" })
}

// OneOf restricts a string to the given values
func (t *TypeSpec) OneOf(values ...string) *TypeSpec {
	return t.modifyBase(func(b *TypeSpec) { b.Enum = values })
}

// AsUnique flags the field for a unique storage constraint
func (t *TypeSpec) AsUnique() *TypeSpec {
	return t.modifyBase(func(b *TypeSpec) { b.Unique = true })
}

// References declares a foreign key to model.field
func (t *TypeSpec) References(model, field string, onDelete CascadeAction) *TypeSpec {
	return t.modifyBase(func(b *TypeSpec) {
		b.Ref = &Reference{Model: model, Field: field, OnDelete: onDelete}
	})
}

// Base returns the innermost non-wrapper type, or nil if a wrapper is empty
func (t *TypeSpec) Base() *TypeSpec {
	cur := t
	for cur != nil && cur.Kind.IsWrapper() {
		cur = cur.Inner
	}
	return cur
}

// modifyBase copies the wrapper chain down to the base type and applies fn to
// the copied base, leaving the receiver untouched.
func (t *TypeSpec) modifyBase(fn func(*TypeSpec)) *TypeSpec {
	if t == nil {
		return nil
	}
	cp := *t
	if cp.Kind.IsWrapper() {
		cp.Inner = cp.Inner.modifyBase(fn)
		return &cp
	}
	fn(&cp)
	return &cp
}
