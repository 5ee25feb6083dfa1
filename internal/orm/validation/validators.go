package validation

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// formatTags maps schema string formats to validator tags
var formatTags = map[string]string{
	"email": "email",
	"url":   "url",
	"uuid":  "uuid",
}

// formatMessages are the messages reported for failed format checks
var formatMessages = map[string]string{
	"email": "must be a valid email address",
	"url":   "must be a valid URL",
	"uuid":  "must be a valid UUID",
}

// checkFormat validates a string against a named format
func checkFormat(v *validator.Validate, format, value string) error {
	tag, ok := formatTags[format]
	if !ok {
		return fmt.Errorf("unknown format %q", format)
	}
	if err := v.Var(value, tag); err != nil {
		return fmt.Errorf("%s", formatMessages[format])
	}
	return nil
}

// dateLayouts are the string encodings accepted for date fields
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate accepts a native time or a serialized date string
func ParseDate(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
