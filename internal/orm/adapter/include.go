package adapter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// depthKey carries the depth ceiling in the JSON form of an include
const depthKey = "_depth"

// Include describes which relationships to attach to a result. A nil child
// means "attach one level, no further nesting". Depth, when positive, caps the
// traversal budget.
type Include struct {
	Relations map[string]*Include
	Depth     int
}

// NewInclude builds an include from relationship paths; "a.b" nests b under a.
func NewInclude(paths ...string) *Include {
	inc := &Include{Relations: make(map[string]*Include)}
	for _, p := range paths {
		inc.Add(p)
	}
	return inc
}

// Add adds a dotted relationship path
func (i *Include) Add(path string) *Include {
	path = strings.TrimSpace(path)
	if path == "" {
		return i
	}
	if i.Relations == nil {
		i.Relations = make(map[string]*Include)
	}
	head, rest, nested := strings.Cut(path, ".")
	head = strings.TrimSpace(head)
	if head == "" {
		return i
	}
	if !nested {
		if _, exists := i.Relations[head]; !exists {
			i.Relations[head] = nil
		}
		return i
	}
	child := i.Relations[head]
	if child == nil {
		child = &Include{Relations: make(map[string]*Include)}
		i.Relations[head] = child
	}
	child.Add(rest)
	return i
}

// Empty reports whether nothing is requested
func (i *Include) Empty() bool {
	return i == nil || len(i.Relations) == 0
}

// Names returns the requested relationship names in sorted order
func (i *Include) Names() []string {
	if i == nil {
		return nil
	}
	names := make([]string, 0, len(i.Relations))
	for name := range i.Relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Levels returns the nesting depth of the include tree: 1 for a flat include
func (i *Include) Levels() int {
	if i.Empty() {
		return 0
	}
	deepest := 0
	for _, child := range i.Relations {
		if l := child.Levels(); l > deepest {
			deepest = l
		}
	}
	return deepest + 1
}

// Budget returns the traversal budget: the depth ceiling when set, otherwise
// the nesting depth.
func (i *Include) Budget() int {
	levels := i.Levels()
	if i != nil && i.Depth > 0 && i.Depth < levels {
		return i.Depth
	}
	return levels
}

// Merge returns an include requesting everything in i and other
func (i *Include) Merge(other *Include) *Include {
	if i.Empty() {
		return other
	}
	if other.Empty() {
		return i
	}
	out := &Include{Relations: make(map[string]*Include), Depth: i.Depth}
	if other.Depth > out.Depth {
		out.Depth = other.Depth
	}
	for name, child := range i.Relations {
		out.Relations[name] = child
	}
	for name, child := range other.Relations {
		if existing, ok := out.Relations[name]; ok {
			out.Relations[name] = existing.Merge(child)
			continue
		}
		out.Relations[name] = child
	}
	return out
}

// ParseInclude parses either a JSON object ({"parent":{"parent":true}}) or a
// comma separated list of dotted paths ("parent,children.tags").
func ParseInclude(raw string) (*Include, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "{") {
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("invalid include: %w", err)
		}
		return includeFromMap(m)
	}
	if strings.HasPrefix(raw, "[") {
		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			return nil, fmt.Errorf("invalid include: %w", err)
		}
		return NewInclude(names...), nil
	}
	return NewInclude(strings.Split(raw, ",")...), nil
}

func includeFromMap(m map[string]interface{}) (*Include, error) {
	inc := &Include{Relations: make(map[string]*Include)}
	for name, v := range m {
		if name == depthKey {
			depth, ok := v.(float64)
			if !ok || depth < 0 {
				return nil, fmt.Errorf("invalid include: %s must be a non-negative number", depthKey)
			}
			inc.Depth = int(depth)
			continue
		}
		switch val := v.(type) {
		case bool:
			if val {
				inc.Relations[name] = nil
			}
		case map[string]interface{}:
			child, err := includeFromMap(val)
			if err != nil {
				return nil, err
			}
			if child.Empty() {
				inc.Relations[name] = nil
				continue
			}
			inc.Relations[name] = child
		default:
			return nil, fmt.Errorf("invalid include: %s must be a boolean or an object", name)
		}
	}
	return inc, nil
}
