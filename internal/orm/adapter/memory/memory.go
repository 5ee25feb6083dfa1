// Package memory provides an in-process storage adapter. Records are kept per
// model in insertion order and copied on the way in and out.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/schema"
)

// Adapter is a thread-safe in-memory implementation of adapter.Adapter
type Adapter struct {
	mu       sync.RWMutex
	tables   map[string][]adapter.Record
	registry *schema.Registry
}

// New creates an empty in-memory adapter. The registry is optional; when set,
// unique fields are enforced and references can be validated.
func New(registry *schema.Registry) *Adapter {
	return &Adapter{
		tables:   make(map[string][]adapter.Record),
		registry: registry,
	}
}

// BindRegistry enables unique and reference checks against registry
func (a *Adapter) BindRegistry(registry *schema.Registry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registry = registry
}

// Create stores a copy of data
func (a *Adapter) Create(ctx context.Context, model string, data adapter.Record) (adapter.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkUnique(model, data, -1); err != nil {
		return nil, err
	}
	rec := copyRecord(data)
	a.tables[model] = append(a.tables[model], rec)
	return copyRecord(rec), nil
}

// FindFirst returns the first matching record or nil
func (a *Adapter) FindFirst(ctx context.Context, model string, where []adapter.Where, include *adapter.Include) (adapter.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, rec := range a.tables[model] {
		ok, err := adapter.Match(rec, where)
		if err != nil {
			return nil, err
		}
		if ok {
			return copyRecord(rec), nil
		}
	}
	return nil, nil
}

// FindMany returns the matching records, ordered and paginated
func (a *Adapter) FindMany(ctx context.Context, model string, q adapter.Query) ([]adapter.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var matched []adapter.Record
	for _, rec := range a.tables[model] {
		ok, err := adapter.Match(rec, q.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}

	if len(q.OrderBy) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range q.OrderBy {
				c, _ := adapter.Compare(matched[i][o.Field], matched[j][o.Field])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]adapter.Record, 0, len(matched))
	for _, rec := range matched {
		out = append(out, project(rec, q.Select))
	}
	return out, nil
}

// Update merges data into every matching record and returns the first
func (a *Adapter) Update(ctx context.Context, model string, where []adapter.Where, data adapter.Record) (adapter.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var first adapter.Record
	rows := a.tables[model]
	for i, rec := range rows {
		ok, err := adapter.Match(rec, where)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		updated := copyRecord(rec)
		for k, v := range data {
			updated[k] = v
		}
		if err := a.checkUnique(model, updated, i); err != nil {
			return nil, err
		}
		rows[i] = updated
		if first == nil {
			first = copyRecord(updated)
		}
	}
	return first, nil
}

// Delete removes every matching record
func (a *Adapter) Delete(ctx context.Context, model string, where []adapter.Where) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows := a.tables[model]
	kept := rows[:0]
	for _, rec := range rows {
		ok, err := adapter.Match(rec, where)
		if err != nil {
			return err
		}
		if !ok {
			kept = append(kept, rec)
		}
	}
	a.tables[model] = kept
	return nil
}

// Count returns the number of matching records
func (a *Adapter) Count(ctx context.Context, model string, where []adapter.Where) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := 0
	for _, rec := range a.tables[model] {
		ok, err := adapter.Match(rec, where)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// ValidateReferences checks foreign key targets when a registry is configured
func (a *Adapter) ValidateReferences(ctx context.Context, model string, data adapter.Record) error {
	if a.registry == nil {
		return nil
	}
	fields, err := a.registry.GetFields(model)
	if err != nil {
		return nil
	}
	return adapter.CheckReferences(ctx, a, fields, data)
}

// Reset drops every stored record
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tables = make(map[string][]adapter.Record)
}

// checkUnique enforces unique fields; skip is the row index being replaced.
// The caller holds the write lock.
func (a *Adapter) checkUnique(model string, data adapter.Record, skip int) error {
	if a.registry == nil {
		return nil
	}
	m, ok := a.registry.Get(model)
	if !ok {
		return nil
	}
	for name, attr := range m.Fields {
		if !attr.Unique && name != "id" {
			continue
		}
		value, present := data[name]
		if !present || value == nil {
			continue
		}
		for i, rec := range a.tables[model] {
			if i != skip && adapter.Equal(rec[name], value) {
				return fmt.Errorf("%w: %s.%s = %v", adapter.ErrUniqueViolation, model, name, value)
			}
		}
	}
	return nil
}

func copyRecord(r adapter.Record) adapter.Record {
	out := make(adapter.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func project(r adapter.Record, fields []string) adapter.Record {
	if len(fields) == 0 {
		return copyRecord(r)
	}
	out := make(adapter.Record, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}
