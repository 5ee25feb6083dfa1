// Package router mounts the generated operations of every resource on chi
package router

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/armelgeek/better-query/internal/web/middleware"
	"github.com/armelgeek/better-query/internal/web/response"
)

// RouteInfo describes a mounted route for introspection
type RouteInfo struct {
	Method   string
	Pattern  string
	Name     string
	Resource string
	// Operation is the pipeline operation, or "custom" / "plugin"
	Operation string
}

// Router is a chi router that records what it mounts
type Router struct {
	mux      chi.Router
	basePath string

	mu     sync.RWMutex
	routes []RouteInfo
	seen   map[string]bool
}

// New creates a router; routes are mounted under basePath
func New(basePath string, middlewares ...middleware.Middleware) *Router {
	mux := chi.NewRouter()
	for _, m := range middlewares {
		mux.Use(m)
	}
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Message(w, http.StatusNotFound, "Route not found")
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Message(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return &Router{
		mux:      mux,
		basePath: normalizeBase(basePath),
		seen:     make(map[string]bool),
	}
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// BasePath returns the prefix of every mounted route
func (r *Router) BasePath() string {
	return r.basePath
}

// Handle mounts handler at basePath+pattern. It reports false when the same
// method and pattern is already mounted.
func (r *Router) Handle(info RouteInfo, handler http.HandlerFunc) bool {
	info.Method = strings.ToUpper(info.Method)
	if info.Method == "" {
		info.Method = http.MethodGet
	}
	info.Pattern = r.basePath + "/" + strings.TrimPrefix(info.Pattern, "/")

	r.mu.Lock()
	defer r.mu.Unlock()
	key := info.Method + " " + info.Pattern
	if r.seen[key] {
		return false
	}
	r.seen[key] = true
	r.routes = append(r.routes, info)
	r.mux.Method(info.Method, info.Pattern, handler)
	return true
}

// Routes returns the mounted routes sorted by pattern then method
func (r *Router) Routes() []RouteInfo {
	r.mu.RLock()
	out := append([]RouteInfo(nil), r.routes...)
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pattern != out[j].Pattern {
			return out[i].Pattern < out[j].Pattern
		}
		return out[i].Method < out[j].Method
	})
	return out
}

func normalizeBase(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	return "/" + strings.Trim(base, "/")
}
