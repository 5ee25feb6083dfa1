package adapter

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Match reports whether a record satisfies every AND-ed condition and at
// least one condition of the OR group, if any.
func Match(record Record, where []Where) (bool, error) {
	and, or := SplitConnectors(where)
	for _, w := range and {
		ok, err := matchOne(record, w)
		if err != nil || !ok {
			return false, err
		}
	}
	if len(or) == 0 {
		return true, nil
	}
	for _, w := range or {
		ok, err := matchOne(record, w)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func matchOne(record Record, w Where) (bool, error) {
	if err := w.Validate(); err != nil {
		return false, err
	}
	value := record[w.Field]

	switch w.Operator {
	case OpEq:
		return Equal(value, w.Value), nil
	case OpNe:
		return !Equal(value, w.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		if value == nil || w.Value == nil {
			return false, nil
		}
		c, ok := Compare(value, w.Value)
		if !ok {
			return false, nil
		}
		switch w.Operator {
		case OpGt:
			return c > 0, nil
		case OpGte:
			return c >= 0, nil
		case OpLt:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case OpIn, OpNotIn:
		found := false
		for _, candidate := range w.Value.([]interface{}) {
			if Equal(value, candidate) {
				found = true
				break
			}
		}
		if w.Operator == OpIn {
			return found, nil
		}
		return !found, nil
	case OpBetween:
		bounds := w.Value.([]interface{})
		if value == nil {
			return false, nil
		}
		lo, ok1 := Compare(value, bounds[0])
		hi, ok2 := Compare(value, bounds[1])
		return ok1 && ok2 && lo >= 0 && hi <= 0, nil
	case OpLike, OpNotLike, OpILike:
		s, ok := value.(string)
		if !ok {
			return w.Operator == OpNotLike, nil
		}
		re, err := likeToRegexp(w.Value.(string), w.Operator == OpILike)
		if err != nil {
			return false, err
		}
		if w.Operator == OpNotLike {
			return !re.MatchString(s), nil
		}
		return re.MatchString(s), nil
	}
	return false, fmt.Errorf("%w: unsupported operator %s", ErrInvalidCondition, w.Operator)
}

// likeToRegexp translates a SQL LIKE pattern (% and _) into an anchored regexp
func likeToRegexp(pattern string, insensitive bool) (*regexp.Regexp, error) {
	var b strings.Builder
	if insensitive {
		b.WriteString("(?i)")
	}
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// Equal compares two stored values, treating all numeric kinds alike and
// comparing times by instant.
func Equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := Compare(a, b); ok {
		return c == 0
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Compare orders two values of compatible kinds. ok is false when the values
// cannot be ordered against each other.
func Compare(a, b interface{}) (int, bool) {
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	if ta, ok := instant(a); ok {
		if tb, ok := instant(b); ok {
			switch {
			case ta.Before(tb):
				return -1, true
			case ta.After(tb):
				return 1, true
			}
			return 0, true
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), true
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0, true
			case !ba:
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// instant reads a time value, accepting RFC3339 strings when compared to a time
func instant(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}
