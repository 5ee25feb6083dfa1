// Package validation parses request payloads against a resource's schema tree,
// applying defaults, coercing dates and collecting every field error.
package validation

import (
	"fmt"
	"math"
	"reflect"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/armelgeek/better-query/internal/orm/schema"
)

// Mode selects how missing fields are treated
type Mode int

const (
	// ModeCreate requires every required field and applies defaults
	ModeCreate Mode = iota
	// ModeUpdate validates only the fields present in the payload
	ModeUpdate
)

// Engine validates payloads against schema trees
type Engine struct {
	validate *validator.Validate
}

// NewEngine creates a new validation engine
func NewEngine() *Engine {
	return &Engine{validate: validator.New()}
}

// Parse validates data against an object schema and returns the cleaned
// payload: undeclared keys are dropped (except "id"), defaults are applied in
// create mode and date strings become time.Time values.
func (e *Engine) Parse(spec *schema.TypeSpec, data map[string]interface{}, mode Mode) (map[string]interface{}, error) {
	if spec == nil || spec.Kind != schema.KindObject {
		return nil, fmt.Errorf("validation requires an object schema")
	}

	errs := NewValidationErrors()
	out := e.parseObject("", spec, data, mode, errs)
	if id, ok := data["id"]; ok {
		if _, declared := spec.Fields["id"]; !declared {
			out["id"] = id
		}
	}
	if errs.HasErrors() {
		return nil, errs
	}
	return out, nil
}

func (e *Engine) parseObject(path string, spec *schema.TypeSpec, data map[string]interface{}, mode Mode, errs *ValidationErrors) map[string]interface{} {
	out := make(map[string]interface{}, len(spec.Fields))
	for name, fieldSpec := range spec.Fields {
		fieldPath := joinPath(path, name)
		value, present := data[name]
		if !present {
			if mode == ModeUpdate {
				continue
			}
			if def, ok := defaultOf(fieldSpec); ok {
				out[name] = def
				continue
			}
			if isOmittable(fieldSpec) {
				continue
			}
			errs.Add(fieldPath, "is required")
			continue
		}
		if v, ok := e.parseValue(fieldPath, fieldSpec, value, errs); ok {
			out[name] = v
		}
	}
	return out
}

// parseValue validates a single value, returning the coerced value
func (e *Engine) parseValue(path string, spec *schema.TypeSpec, value interface{}, errs *ValidationErrors) (interface{}, bool) {
	if spec == nil {
		errs.Add(path, "has no type")
		return nil, false
	}

	if value == nil {
		switch {
		case isOmittable(spec):
			return nil, true
		case spec.Kind == schema.KindDefault:
			return spec.Default, true
		default:
			errs.Add(path, "must not be null")
			return nil, false
		}
	}

	if spec.Kind.IsWrapper() {
		return e.parseValue(path, spec.Inner, value, errs)
	}

	switch spec.Kind {
	case schema.KindString:
		return e.parseString(path, spec, value, errs)
	case schema.KindNumber:
		return parseNumber(path, spec, value, errs)
	case schema.KindBoolean:
		b, ok := value.(bool)
		if !ok {
			errs.Add(path, "must be a boolean")
			return nil, false
		}
		return b, true
	case schema.KindDate:
		t, ok := ParseDate(value)
		if !ok {
			errs.Add(path, "must be a valid date")
			return nil, false
		}
		return t, true
	case schema.KindArray:
		return e.parseArray(path, spec, value, errs)
	case schema.KindObject:
		m, ok := value.(map[string]interface{})
		if !ok {
			errs.Add(path, "must be an object")
			return nil, false
		}
		return e.parseObject(path, spec, m, ModeCreate, errs), true
	case schema.KindRecord:
		m, ok := value.(map[string]interface{})
		if !ok {
			errs.Add(path, "must be an object")
			return nil, false
		}
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			if pv, ok := e.parseValue(joinPath(path, k), spec.Inner, v, errs); ok {
				out[k] = pv
			}
		}
		return out, true
	default:
		errs.Add(path, fmt.Sprintf("has unsupported type %s", spec.Kind))
		return nil, false
	}
}

func (e *Engine) parseString(path string, spec *schema.TypeSpec, value interface{}, errs *ValidationErrors) (interface{}, bool) {
	s, ok := value.(string)
	if !ok {
		errs.Add(path, "must be a string")
		return nil, false
	}

	valid := true
	length := utf8.RuneCountInString(s)
	if spec.MinLength != nil && length < *spec.MinLength {
		errs.Add(path, fmt.Sprintf("must be at least %d characters", *spec.MinLength))
		valid = false
	}
	if spec.MaxLength != nil && length > *spec.MaxLength {
		errs.Add(path, fmt.Sprintf("must be at most %d characters", *spec.MaxLength))
		valid = false
	}
	if spec.Format != "" {
		if err := checkFormat(e.validate, spec.Format, s); err != nil {
			errs.Add(path, err.Error())
			valid = false
		}
	}
	if len(spec.Enum) > 0 && !contains(spec.Enum, s) {
		errs.Add(path, fmt.Sprintf("must be one of %v", spec.Enum))
		valid = false
	}
	return s, valid
}

func parseNumber(path string, spec *schema.TypeSpec, value interface{}, errs *ValidationErrors) (interface{}, bool) {
	f, ok := toFloat64(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		errs.Add(path, "must be a number")
		return nil, false
	}

	valid := true
	if spec.Integer && f != math.Trunc(f) {
		errs.Add(path, "must be an integer")
		valid = false
	}
	if spec.Min != nil && f < *spec.Min {
		errs.Add(path, fmt.Sprintf("must be at least %v", *spec.Min))
		valid = false
	}
	if spec.Max != nil && f > *spec.Max {
		errs.Add(path, fmt.Sprintf("must be at most %v", *spec.Max))
		valid = false
	}
	return f, valid
}

func (e *Engine) parseArray(path string, spec *schema.TypeSpec, value interface{}, errs *ValidationErrors) (interface{}, bool) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		errs.Add(path, "must be an array")
		return nil, false
	}

	out := make([]interface{}, 0, rv.Len())
	valid := true
	for i := 0; i < rv.Len(); i++ {
		v, ok := e.parseValue(fmt.Sprintf("%s[%d]", path, i), spec.Inner, rv.Index(i).Interface(), errs)
		if !ok {
			valid = false
			continue
		}
		out = append(out, v)
	}
	return out, valid
}

// isOmittable reports whether the value may be absent or null
func isOmittable(spec *schema.TypeSpec) bool {
	for cur := spec; cur != nil && cur.Kind.IsWrapper(); cur = cur.Inner {
		if cur.Kind == schema.KindOptional || cur.Kind == schema.KindNullable {
			return true
		}
	}
	return false
}

func defaultOf(spec *schema.TypeSpec) (interface{}, bool) {
	for cur := spec; cur != nil && cur.Kind.IsWrapper(); cur = cur.Inner {
		if cur.Kind == schema.KindDefault {
			return cur.Default, true
		}
	}
	return nil, false
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
