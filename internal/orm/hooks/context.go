package hooks

import (
	"context"
	"net/http"

	"github.com/armelgeek/better-query/internal/orm/adapter"
)

// Operation is the kind of operation a pipeline run performs
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpList   Operation = "list"
)

// User is the acting identity of a request
type User struct {
	ID     string
	Email  string
	Roles  []string
	Scopes []string
	Claims map[string]interface{}
}

// Metadata describes where a request came from
type Metadata struct {
	IP        string
	UserAgent string
	RequestID string
}

// Context is the state of one pipeline run. It is created per request and
// never shared.
type Context struct {
	context.Context

	User      *User
	Resource  string
	Operation Operation
	// ID is the target record id for read/update/delete
	ID string
	// Data is the input payload; stages may replace or mutate it
	Data map[string]interface{}
	// Existing is the stored record before the operation
	Existing adapter.Record
	// Result is the record (or page) produced by the storage call
	Result   interface{}
	Scopes   []string
	Request  *http.Request
	Adapter  adapter.Adapter
	Metadata Metadata
}

// NewContext creates a pipeline context
func NewContext(ctx context.Context, resource string, op Operation) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{
		Context:   ctx,
		Resource:  resource,
		Operation: op,
	}
}

// UserID returns the acting user's id or ""
func (c *Context) UserID() string {
	if c.User == nil {
		return ""
	}
	return c.User.ID
}

// snapshot returns a detached copy whose payloads can outlive the request
func (c *Context) snapshot(parent context.Context) *Context {
	cp := *c
	cp.Context = parent
	cp.Request = nil
	cp.Data = deepCopyRecord(c.Data)
	cp.Existing = deepCopyRecord(c.Existing)
	cp.Result = deepCopyValue(c.Result)
	return &cp
}

func deepCopyRecord(record map[string]interface{}) map[string]interface{} {
	if record == nil {
		return nil
	}
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopyRecord(val)
	case []map[string]interface{}:
		out := make([]map[string]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopyRecord(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
