package adapter

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/armelgeek/better-query/internal/orm/schema"
)

// TimeFormat is the encoding of date values at the storage boundary. Values
// are UTC with nine fractional digits, so stored text sorts chronologically.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// MarshalValue converts a value to its storage form: dates become timestamp
// strings, arrays and objects become JSON strings.
func MarshalValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return val.UTC().Format(TimeFormat), nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return val.UTC().Format(TimeFormat), nil
	case []byte:
		return string(val), nil
	case string, bool, int, int32, int64, float32, float64:
		return val, nil
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return string(b), nil
	}
	return v, nil
}

// MarshalRecord converts every value of a record to its storage form
func MarshalRecord(r Record) (Record, error) {
	out := make(Record, len(r))
	for k, v := range r {
		mv, err := MarshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = mv
	}
	return out, nil
}

// UnmarshalRecord converts stored values back using the inferred field types.
// JSON fields that fail to parse keep their raw string.
func UnmarshalRecord(r Record, fields map[string]*schema.FieldAttribute) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		attr, known := fields[k]
		if !known || v == nil {
			out[k] = v
			continue
		}
		out[k] = UnmarshalValue(v, attr.Type)
	}
	return out
}

// UnmarshalValue converts a single stored value to the given field type
func UnmarshalValue(v interface{}, t schema.FieldType) interface{} {
	switch t {
	case schema.TypeDate:
		switch val := v.(type) {
		case time.Time:
			return val
		case string:
			if parsed, err := time.Parse(time.RFC3339Nano, val); err == nil {
				return parsed
			}
		case []byte:
			if parsed, err := time.Parse(time.RFC3339Nano, string(val)); err == nil {
				return parsed
			}
		}
		return v
	case schema.TypeJSON:
		var raw []byte
		switch val := v.(type) {
		case string:
			raw = []byte(val)
		case []byte:
			raw = val
		default:
			return v
		}
		var decoded interface{}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return string(raw)
		}
		return decoded
	case schema.TypeBoolean:
		switch val := v.(type) {
		case int64:
			return val != 0
		case int:
			return val != 0
		case string:
			if b, err := strconv.ParseBool(val); err == nil {
				return b
			}
		}
		return v
	case schema.TypeNumber:
		switch val := v.(type) {
		case int64:
			return float64(val)
		case int32:
			return float64(val)
		case int:
			return float64(val)
		case []byte:
			if f, err := strconv.ParseFloat(string(val), 64); err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
		return v
	case schema.TypeString:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	}
	return v
}
