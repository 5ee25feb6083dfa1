// Package query parses the query string of generated routes
package query

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/armelgeek/better-query/internal/endpoint"
	"github.com/armelgeek/better-query/internal/orm/adapter"
)

// ParseShape reads include and select. include is either dotted paths
// ("author,comments.author") or a JSON object; select is a comma separated list.
func ParseShape(r *http.Request) (*adapter.Include, []string, error) {
	q := r.URL.Query()
	var inc *adapter.Include
	if raw := q.Get("include"); raw != "" {
		parsed, err := adapter.ParseInclude(raw)
		if err != nil {
			return nil, nil, endpoint.BadRequestf("invalid include: %v", err)
		}
		inc = parsed
	}
	return inc, splitList(q.Get("select")), nil
}

// ParseList reads the list parameters: page, limit, search, searchFields,
// sortBy, sortOrder, filters (JSON map), where (JSON list or map) and
// dateRange (JSON {field, from, to})
func ParseList(r *http.Request) (endpoint.ListParams, error) {
	q := r.URL.Query()
	var p endpoint.ListParams
	var err error

	if p.Page, err = intParam(q, "page"); err != nil {
		return p, err
	}
	if p.Limit, err = intParam(q, "limit"); err != nil {
		return p, err
	}
	p.Search = strings.TrimSpace(q.Get("search"))
	p.SearchFields = splitList(q.Get("searchFields"))
	p.SortBy = q.Get("sortBy")
	p.SortOrder = q.Get("sortOrder")

	if raw := q.Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Filters); err != nil {
			return p, endpoint.BadRequestf("filters must be a JSON object")
		}
	}
	if raw := q.Get("where"); raw != "" {
		var decoded interface{}
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return p, endpoint.BadRequestf("where must be JSON")
		}
		if p.Where, err = endpoint.ParseWhere(decoded); err != nil {
			return p, endpoint.BadRequestf("invalid where: %v", err)
		}
	}
	if raw := q.Get("dateRange"); raw != "" {
		var dr endpoint.DateRange
		if err := json.Unmarshal([]byte(raw), &dr); err != nil || dr.Field == "" {
			return p, endpoint.BadRequestf("dateRange must be a JSON object with a field")
		}
		p.DateRange = &dr
	}
	return p, nil
}

func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, endpoint.BadRequestf("%s must be an integer", name)
	}
	return n, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
