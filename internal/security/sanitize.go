// Package security holds the authorization and input hygiene helpers used by
// the operation pipeline: sanitization, scope and ownership checks, request
// metadata and bearer-token identity.
package security

import (
	"html"
	"regexp"
	"strings"
)

// RuleKind names a sanitization rule
type RuleKind string

const (
	RuleTrim      RuleKind = "trim"
	RuleEscape    RuleKind = "escape"
	RuleLowercase RuleKind = "lowercase"
	RuleUppercase RuleKind = "uppercase"
	RuleStrip     RuleKind = "strip"
	RuleCustom    RuleKind = "custom"
)

// Rule transforms a string value
type Rule struct {
	Kind RuleKind
	// Fn is the transformation of a custom rule
	Fn func(string) string
}

// Trim removes leading and trailing whitespace
func Trim() Rule { return Rule{Kind: RuleTrim} }

// Escape replaces HTML special characters with entities
func Escape() Rule { return Rule{Kind: RuleEscape} }

// Lowercase lowercases the value
func Lowercase() Rule { return Rule{Kind: RuleLowercase} }

// Uppercase uppercases the value
func Uppercase() Rule { return Rule{Kind: RuleUppercase} }

// Strip removes HTML tags
func Strip() Rule { return Rule{Kind: RuleStrip} }

// Custom applies fn
func Custom(fn func(string) string) Rule { return Rule{Kind: RuleCustom, Fn: fn} }

// ParseRule returns the built-in rule of the given name
func ParseRule(name string) (Rule, bool) {
	switch RuleKind(strings.ToLower(strings.TrimSpace(name))) {
	case RuleTrim:
		return Trim(), true
	case RuleEscape:
		return Escape(), true
	case RuleLowercase:
		return Lowercase(), true
	case RuleUppercase:
		return Uppercase(), true
	case RuleStrip:
		return Strip(), true
	}
	return Rule{}, false
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Apply runs the rule on s
func (r Rule) Apply(s string) string {
	switch r.Kind {
	case RuleTrim:
		return strings.TrimSpace(s)
	case RuleEscape:
		return html.EscapeString(s)
	case RuleLowercase:
		return strings.ToLower(s)
	case RuleUppercase:
		return strings.ToUpper(s)
	case RuleStrip:
		return tagPattern.ReplaceAllString(s, "")
	case RuleCustom:
		if r.Fn != nil {
			return r.Fn(s)
		}
	}
	return s
}

// Sanitization lists the rules of a resource. Global rules apply to every
// string in a payload; Fields rules apply to the strings under a top-level key.
type Sanitization struct {
	Global []Rule
	Fields map[string][]Rule
}

// Sanitize returns a copy of data with every string, including strings nested
// in objects and arrays, passed through the global rules and then the rules of
// the top-level field it belongs to.
func Sanitize(data map[string]interface{}, s *Sanitization) map[string]interface{} {
	if data == nil || s == nil || (len(s.Global) == 0 && len(s.Fields) == 0) {
		return data
	}
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		rules := s.Global
		if fieldRules := s.Fields[key]; len(fieldRules) > 0 {
			rules = append(append([]Rule(nil), s.Global...), fieldRules...)
		}
		out[key] = sanitizeValue(value, rules)
	}
	return out
}

func sanitizeValue(v interface{}, rules []Rule) interface{} {
	if len(rules) == 0 {
		return v
	}
	switch val := v.(type) {
	case string:
		for _, r := range rules {
			val = r.Apply(val)
		}
		return val
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = sanitizeValue(item, rules)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item, rules)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item, rules).(string)
		}
		return out
	default:
		return v
	}
}
