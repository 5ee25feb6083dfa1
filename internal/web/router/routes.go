package router

import (
	"fmt"
	"net/http"

	"github.com/armelgeek/better-query/internal/endpoint"
	"github.com/armelgeek/better-query/internal/orm/hooks"
	"github.com/armelgeek/better-query/internal/orm/schema"
)

// MountResource mounts the enabled operations and custom endpoints of a
// resource:
//
//	POST   /{name}
//	GET    /{name}/{id}
//	PATCH  /{name}/{id}
//	DELETE /{name}/{id}
//	GET    /{name}s
//	POST   /{name}/{id}/relations/{relation}
func (r *Router) MountResource(eps *endpoint.Endpoints) error {
	res := eps.Resource()
	name := res.Name
	h := &handlers{eps: eps}

	routes := []struct {
		op      hooks.Operation
		method  string
		pattern string
		handler http.HandlerFunc
	}{
		{hooks.OpCreate, http.MethodPost, "/" + name, h.create},
		{hooks.OpRead, http.MethodGet, "/" + name + "/{id}", h.read},
		{hooks.OpUpdate, http.MethodPatch, "/" + name + "/{id}", h.update},
		{hooks.OpDelete, http.MethodDelete, "/" + name + "/{id}", h.delete},
		{hooks.OpList, http.MethodGet, "/" + name + "s", h.list},
	}
	for _, rt := range routes {
		if !res.Enabled(rt.op) {
			continue
		}
		info := RouteInfo{Method: rt.method, Pattern: rt.pattern, Name: name + "." + string(rt.op), Resource: name, Operation: string(rt.op)}
		if !r.Handle(info, rt.handler) {
			return &endpoint.ConfigurationError{Resource: name, Reason: fmt.Sprintf("route %s %s is already mounted", rt.method, rt.pattern)}
		}
	}
	if res.Enabled(hooks.OpUpdate) && hasManyToMany(eps) {
		info := RouteInfo{Method: http.MethodPost, Pattern: "/" + name + "/{id}/relations/{relation}", Name: name + ".relate", Resource: name, Operation: "relate"}
		if !r.Handle(info, h.relate) {
			return &endpoint.ConfigurationError{Resource: name, Reason: "relations route is already mounted"}
		}
	}

	for _, ce := range res.CustomEndpoints {
		info := RouteInfo{Method: ce.Method, Pattern: ce.Path, Name: name + "." + ce.Name, Resource: name, Operation: "custom"}
		if !r.Handle(info, ce.Handler) {
			return &endpoint.ConfigurationError{Resource: name, Reason: fmt.Sprintf("custom endpoint %s conflicts with a mounted route", ce.Name)}
		}
	}
	return nil
}

func hasManyToMany(eps *endpoint.Endpoints) bool {
	for _, rel := range eps.Model().Relationships {
		if rel.Type == schema.RelationshipBelongsToMany {
			return true
		}
	}
	return false
}
