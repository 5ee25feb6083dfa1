package sqladapter

import (
	"fmt"
	"strings"

	"github.com/armelgeek/better-query/internal/orm/adapter"
)

// whereBuilder renders conditions into a parameterized WHERE clause
type whereBuilder struct {
	dialect Dialect
	args    []interface{}
}

func (b *whereBuilder) bind(v interface{}) (string, error) {
	mv, err := adapter.MarshalValue(v)
	if err != nil {
		return "", err
	}
	b.args = append(b.args, mv)
	return b.dialect.Placeholder(len(b.args)), nil
}

// build returns the clause (without the WHERE keyword) or "" when there are no conditions
func (b *whereBuilder) build(where []adapter.Where) (string, error) {
	and, or := adapter.SplitConnectors(where)

	parts := make([]string, 0, len(and)+1)
	for _, w := range and {
		sql, err := b.condition(w)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}

	if len(or) > 0 {
		orParts := make([]string, 0, len(or))
		for _, w := range or {
			sql, err := b.condition(w)
			if err != nil {
				return "", err
			}
			orParts = append(orParts, sql)
		}
		parts = append(parts, "("+strings.Join(orParts, " OR ")+")")
	}

	return strings.Join(parts, " AND "), nil
}

// condition converts a condition to SQL with parameterized values
func (b *whereBuilder) condition(w adapter.Where) (string, error) {
	if err := w.Validate(); err != nil {
		return "", err
	}
	col := b.dialect.Quote(w.Field)

	switch w.Operator {
	case adapter.OpEq, adapter.OpNe:
		if w.Value == nil {
			if w.Operator == adapter.OpEq {
				return col + " IS NULL", nil
			}
			return col + " IS NOT NULL", nil
		}
		p, err := b.bind(w.Value)
		if err != nil {
			return "", err
		}
		op := "="
		if w.Operator == adapter.OpNe {
			op = "!="
		}
		return fmt.Sprintf("%s %s %s", col, op, p), nil

	case adapter.OpGt, adapter.OpGte, adapter.OpLt, adapter.OpLte:
		p, err := b.bind(w.Value)
		if err != nil {
			return "", err
		}
		ops := map[adapter.Operator]string{
			adapter.OpGt: ">", adapter.OpGte: ">=", adapter.OpLt: "<", adapter.OpLte: "<=",
		}
		return fmt.Sprintf("%s %s %s", col, ops[w.Operator], p), nil

	case adapter.OpIn, adapter.OpNotIn:
		values := w.Value.([]interface{})
		if len(values) == 0 {
			// IN with an empty list matches nothing; NOT IN matches everything
			if w.Operator == adapter.OpIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			p, err := b.bind(v)
			if err != nil {
				return "", err
			}
			placeholders[i] = p
		}
		op := "IN"
		if w.Operator == adapter.OpNotIn {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(placeholders, ", ")), nil

	case adapter.OpLike, adapter.OpILike, adapter.OpNotLike:
		p, err := b.bind(w.Value)
		if err != nil {
			return "", err
		}
		switch w.Operator {
		case adapter.OpNotLike:
			return fmt.Sprintf("%s NOT LIKE %s", col, p), nil
		case adapter.OpILike:
			return fmt.Sprintf("%s %s %s", col, b.dialect.likeOperator(true), p), nil
		default:
			return fmt.Sprintf("%s LIKE %s", col, p), nil
		}

	case adapter.OpBetween:
		values := w.Value.([]interface{})
		lo, err := b.bind(values[0])
		if err != nil {
			return "", err
		}
		hi, err := b.bind(values[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, lo, hi), nil
	}

	return "", fmt.Errorf("%w: unsupported operator %s", adapter.ErrInvalidCondition, w.Operator)
}

// orderClause renders ORDER BY for the given sort keys
func orderClause(d Dialect, orderBy []adapter.OrderBy) string {
	if len(orderBy) == 0 {
		return ""
	}
	parts := make([]string, len(orderBy))
	for i, o := range orderBy {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts[i] = d.Quote(o.Field) + " " + dir
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}
