package adapter

import (
	"fmt"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNotIn
	OpLike
	OpNotLike
	OpBetween
	// OpILike is LIKE ignoring case
	OpILike
)

// String returns the wire name of the operator
func (o Operator) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpGt:
		return "gt"
	case OpGte:
		return "gte"
	case OpLt:
		return "lt"
	case OpLte:
		return "lte"
	case OpIn:
		return "in"
	case OpNotIn:
		return "notIn"
	case OpLike:
		return "like"
	case OpNotLike:
		return "notLike"
	case OpBetween:
		return "between"
	case OpILike:
		return "ilike"
	default:
		return "unknown"
	}
}

// ParseOperator converts a wire name to an Operator. An empty name means eq.
func ParseOperator(s string) (Operator, error) {
	switch s {
	case "", "eq":
		return OpEq, nil
	case "ne":
		return OpNe, nil
	case "gt":
		return OpGt, nil
	case "gte":
		return OpGte, nil
	case "lt":
		return OpLt, nil
	case "lte":
		return OpLte, nil
	case "in":
		return OpIn, nil
	case "notIn":
		return OpNotIn, nil
	case "like":
		return OpLike, nil
	case "notLike":
		return OpNotLike, nil
	case "between":
		return OpBetween, nil
	case "ilike":
		return OpILike, nil
	default:
		return 0, fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, s)
	}
}

// Where is a single condition. Conditions are AND-ed; conditions with Or set
// form one OR group that is AND-ed with the rest.
type Where struct {
	Field    string
	Operator Operator
	Value    interface{}
	Or       bool
}

// Eq builds an equality condition
func Eq(field string, value interface{}) Where {
	return Where{Field: field, Operator: OpEq, Value: value}
}

// In builds a membership condition
func In(field string, values []interface{}) Where {
	return Where{Field: field, Operator: OpIn, Value: values}
}

// Validate checks the value shape required by the operator
func (w Where) Validate() error {
	if w.Field == "" {
		return fmt.Errorf("%w: field is required", ErrInvalidCondition)
	}
	switch w.Operator {
	case OpIn, OpNotIn:
		if _, ok := w.Value.([]interface{}); !ok {
			return fmt.Errorf("%w: %s on %s requires a list", ErrInvalidCondition, w.Operator, w.Field)
		}
	case OpBetween:
		values, ok := w.Value.([]interface{})
		if !ok || len(values) != 2 {
			return fmt.Errorf("%w: between on %s requires exactly 2 values", ErrInvalidCondition, w.Field)
		}
	case OpLike, OpNotLike, OpILike:
		if _, ok := w.Value.(string); !ok {
			return fmt.Errorf("%w: %s on %s requires a string pattern", ErrInvalidCondition, w.Operator, w.Field)
		}
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
	default:
		return fmt.Errorf("%w: unknown operator on %s", ErrInvalidCondition, w.Field)
	}
	return nil
}

// SplitConnectors separates AND-ed conditions from the OR group
func SplitConnectors(where []Where) (and []Where, or []Where) {
	for _, w := range where {
		if w.Or {
			or = append(or, w)
		} else {
			and = append(and, w)
		}
	}
	return and, or
}
