package endpoint

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/hooks"
	"github.com/armelgeek/better-query/internal/orm/validation"
	"github.com/armelgeek/better-query/internal/web/cache"
)

// DateRange restricts a date field to [From, To]; either bound may be empty
type DateRange struct {
	Field string      `json:"field"`
	From  interface{} `json:"from,omitempty"`
	To    interface{} `json:"to,omitempty"`
}

// ListParams are the query parameters of a list
type ListParams struct {
	Page         int                    `json:"page"`
	Limit        int                    `json:"limit"`
	Search       string                 `json:"search,omitempty"`
	SearchFields []string               `json:"searchFields,omitempty"`
	SortBy       string                 `json:"sortBy,omitempty"`
	SortOrder    string                 `json:"sortOrder,omitempty"`
	Filters      map[string]interface{} `json:"filters,omitempty"`
	Where        []adapter.Where        `json:"where,omitempty"`
	DateRange    *DateRange             `json:"dateRange,omitempty"`
}

// Page is one page of a list
type Page struct {
	Items      []adapter.Record `json:"items"`
	Pagination Pagination       `json:"pagination"`
}

// List returns one page of records matching params
func (e *Endpoints) List(ctx context.Context, in Input, params ListParams) (*Page, error) {
	hctx, err := e.begin(ctx, hooks.OpList, in)
	if err != nil {
		return nil, err
	}
	inc, err := e.shapeOf(in)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(hctx); err != nil {
		return nil, err
	}
	q, page, err := e.buildQuery(hctx, params)
	if err != nil {
		return nil, err
	}
	if err := e.checkRateLimit(hctx); err != nil {
		return nil, err
	}

	key := cache.QueryKey(e.resource.Name, string(hooks.OpList), fingerprint(q), includeKey(inc), joinSelect(in.Select), e.cacheScope(hctx))
	var result Page
	if e.cache != nil && e.cache.Get(hctx, key, &result) {
		for i, item := range result.Items {
			result.Items[i] = e.restore(e.resource.Name, item)
		}
	} else {
		total, err := e.adapter.Count(hctx, e.resource.Name, q.Where)
		if err != nil {
			return nil, e.storageError(hctx, err)
		}
		records, err := e.adapter.FindMany(hctx, e.resource.Name, q)
		if err != nil {
			return nil, e.storageError(hctx, err)
		}
		items, err := e.resolver.ResolveMany(hctx, e.resource.Name, records, inc)
		if err != nil {
			return nil, e.resolveError(err)
		}
		for i := range items {
			items[i] = project(items[i], in.Select, inc)
		}
		result = Page{Items: items, Pagination: NewPagination(page, q.Limit, total)}
		if e.cache != nil {
			e.cache.Set(hctx, key, result)
		}
	}
	if result.Items == nil {
		result.Items = []adapter.Record{}
	}
	hctx.Result = &result
	e.executor.RunAfter(hctx, hooks.AfterList)
	return &result, nil
}

// buildQuery composes search, filters, where, date range, ownership, ordering
// and pagination into one storage query
func (e *Endpoints) buildQuery(hctx *hooks.Context, p ListParams) (adapter.Query, int, error) {
	page, limit := normalizePage(p.Page, p.Limit)
	q := adapter.Query{Limit: limit, Offset: offset(page, limit)}

	search, err := e.searchConditions(p.Search, p.SearchFields)
	if err != nil {
		return q, 0, err
	}
	q.Where = append(q.Where, search...)

	filters, err := ParseFilters(p.Filters)
	if err != nil {
		return q, 0, badRequest("invalid filters: %v", err)
	}
	for _, w := range append(filters, p.Where...) {
		if !e.hasField(w.Field) {
			return q, 0, badRequest("unknown field %q", w.Field)
		}
		if err := w.Validate(); err != nil {
			return q, 0, badRequest("%v", err)
		}
		q.Where = append(q.Where, w)
	}

	if dr := p.DateRange; dr != nil {
		conds, err := e.dateRangeConditions(dr)
		if err != nil {
			return q, 0, err
		}
		q.Where = append(q.Where, conds...)
	}

	if w, ok := e.ownerFilter(hctx); ok {
		q.Where = append(q.Where, w)
	}

	if p.SortBy != "" {
		if !e.hasField(p.SortBy) {
			return q, 0, badRequest("unknown sort field %q", p.SortBy)
		}
		var desc bool
		switch strings.ToLower(p.SortOrder) {
		case "", "asc":
		case "desc":
			desc = true
		default:
			return q, 0, badRequest("sortOrder must be asc or desc")
		}
		q.OrderBy = append(q.OrderBy, adapter.OrderBy{Field: p.SortBy, Desc: desc})
		if p.SortBy != "id" {
			// stable pages across equal sort values
			q.OrderBy = append(q.OrderBy, adapter.OrderBy{Field: "id"})
		}
	}
	return q, page, nil
}

// searchConditions builds the OR group matching term against the search fields.
// Requested fields narrow the configured set; without configuration any
// declared field may be searched with a case-insensitive contains match.
func (e *Endpoints) searchConditions(term string, requested []string) ([]adapter.Where, error) {
	if term == "" {
		return nil, nil
	}
	cfg := e.resource.Search
	if cfg == nil {
		cfg = &Search{Fields: requested, Strategy: SearchContains}
	}

	fields := cfg.Fields
	if len(requested) > 0 {
		allowed := make(map[string]bool, len(cfg.Fields))
		for _, f := range cfg.Fields {
			allowed[f] = true
		}
		fields = nil
		for _, f := range requested {
			if !allowed[f] || !e.hasField(f) {
				return nil, badRequest("field %q is not searchable", f)
			}
			fields = append(fields, f)
		}
	}

	conds := make([]adapter.Where, 0, len(fields))
	for _, f := range fields {
		w := adapter.Where{Field: f, Or: true, Operator: adapter.OpILike}
		if cfg.CaseSensitive {
			w.Operator = adapter.OpLike
		}
		switch cfg.Strategy {
		case SearchStartsWith:
			w.Value = term + "%"
		case SearchExact:
			w.Value = term
			if cfg.CaseSensitive {
				w.Operator = adapter.OpEq
			}
		default:
			w.Value = "%" + term + "%"
		}
		conds = append(conds, w)
	}
	return conds, nil
}

func (e *Endpoints) dateRangeConditions(dr *DateRange) ([]adapter.Where, error) {
	if !e.hasField(dr.Field) {
		return nil, badRequest("unknown dateRange field %q", dr.Field)
	}
	var conds []adapter.Where
	for _, bound := range []struct {
		value interface{}
		op    adapter.Operator
	}{
		{dr.From, adapter.OpGte},
		{dr.To, adapter.OpLte},
	} {
		if bound.value == nil || bound.value == "" {
			continue
		}
		t, ok := validation.ParseDate(bound.value)
		if !ok {
			return nil, badRequest("invalid dateRange bound %v", bound.value)
		}
		conds = append(conds, adapter.Where{Field: dr.Field, Operator: bound.op, Value: t})
	}
	return conds, nil
}

// ParseFilters converts a filter map into conditions. A value may be a scalar
// (eq), a list (in), {"operator": "gte", "value": 3} or {"gte": 3, "lt": 9}.
func ParseFilters(filters map[string]interface{}) ([]adapter.Where, error) {
	fields := make([]string, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var out []adapter.Where
	for _, field := range fields {
		conds, err := parseFilter(field, filters[field])
		if err != nil {
			return nil, err
		}
		out = append(out, conds...)
	}
	return out, nil
}

func parseFilter(field string, value interface{}) ([]adapter.Where, error) {
	switch v := value.(type) {
	case []interface{}:
		return []adapter.Where{adapter.In(field, v)}, nil
	case map[string]interface{}:
		if opName, ok := v["operator"]; ok {
			s, _ := opName.(string)
			op, err := adapter.ParseOperator(s)
			if err != nil {
				return nil, err
			}
			return []adapter.Where{{Field: field, Operator: op, Value: v["value"]}}, nil
		}
		ops := make([]string, 0, len(v))
		for name := range v {
			ops = append(ops, name)
		}
		sort.Strings(ops)
		conds := make([]adapter.Where, 0, len(ops))
		for _, name := range ops {
			op, err := adapter.ParseOperator(name)
			if err != nil {
				return nil, err
			}
			conds = append(conds, adapter.Where{Field: field, Operator: op, Value: v[name]})
		}
		return conds, nil
	default:
		return []adapter.Where{adapter.Eq(field, v)}, nil
	}
}

// ParseWhere converts the where parameter: either a filter map or a list of
// {field, operator, value, connector} objects where connector "OR" joins the
// condition to the OR group.
func ParseWhere(raw interface{}) ([]adapter.Where, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return ParseFilters(v)
	case []interface{}:
		out := make([]adapter.Where, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("where[%d] must be an object", i)
			}
			field, _ := m["field"].(string)
			opName, _ := m["operator"].(string)
			op, err := adapter.ParseOperator(opName)
			if err != nil {
				return nil, err
			}
			connector, _ := m["connector"].(string)
			out = append(out, adapter.Where{
				Field:    field,
				Operator: op,
				Value:    m["value"],
				Or:       strings.EqualFold(connector, "or"),
			})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("where must be an object or a list")
	}
}

// fingerprint renders a query deterministically for cache keys
func fingerprint(q adapter.Query) string {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Sprintf("%+v", q)
	}
	return string(data)
}
