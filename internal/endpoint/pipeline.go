package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/hooks"
	"github.com/armelgeek/better-query/internal/orm/relationships"
	"github.com/armelgeek/better-query/internal/orm/schema"
	"github.com/armelgeek/better-query/internal/orm/validation"
	"github.com/armelgeek/better-query/internal/security"
	webcontext "github.com/armelgeek/better-query/internal/web/context"
)

// begin builds the operation context and runs the middleware chain
func (e *Endpoints) begin(ctx context.Context, op hooks.Operation, in Input) (*hooks.Context, error) {
	if !e.resource.Enabled(op) {
		return nil, forbidden(fmt.Sprintf("%s is disabled for %s", op, e.resource.Name))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	hctx := hooks.NewContext(ctx, e.resource.Name, op)
	hctx.ID = in.ID
	hctx.Adapter = e.adapter
	hctx.Request = in.Request
	hctx.User = in.User
	hctx.Scopes = append([]string(nil), in.Scopes...)
	if in.Data != nil {
		hctx.Data = make(map[string]interface{}, len(in.Data))
		for k, v := range in.Data {
			hctx.Data[k] = v
		}
	}
	if in.Request != nil {
		rc := security.ExtractContext(in.Request)
		hctx.Metadata = hooks.Metadata{IP: rc.IP, UserAgent: rc.UserAgent, RequestID: rc.RequestID}
		if hctx.User == nil {
			hctx.User = webcontext.GetUser(in.Request.Context())
		}
	}
	if hctx.User == nil {
		hctx.User = webcontext.GetUser(ctx)
	}

	for _, mw := range e.middleware {
		if err := mw(hctx); err != nil {
			var perr *Error
			if errors.As(err, &perr) {
				return nil, perr
			}
			return nil, newError(ErrForbidden, err.Error(), nil, err)
		}
	}
	return hctx, nil
}

// shapeOf resolves the include and select of a request. A request naming no
// include gets the relationships flagged IncludeByDefault.
func (e *Endpoints) shapeOf(in Input) (*adapter.Include, error) {
	inc := in.Include
	if inc.Empty() {
		inc = e.resolver.DefaultInclude(e.resource.Name)
	}
	for _, name := range inc.Names() {
		if _, ok := e.model.Relationship(name); !ok {
			return nil, badRequest("unknown relationship %q on %s", name, e.resource.Name)
		}
	}
	for _, field := range in.Select {
		if !e.hasField(field) {
			return nil, badRequest("unknown field %q in select", field)
		}
	}
	return inc, nil
}

func (e *Endpoints) loadExisting(hctx *hooks.Context) error {
	if hctx.ID == "" {
		return notFound()
	}
	rec, err := e.adapter.FindFirst(hctx, e.resource.Name, idWhere(hctx.ID), nil)
	if err != nil {
		return e.storageError(hctx, err)
	}
	if rec == nil {
		return notFound()
	}
	hctx.Existing = rec
	return nil
}

func (e *Endpoints) runBefore(hctx *hooks.Context, t hooks.HookType) error {
	if err := e.executor.RunBefore(hctx, t); err != nil {
		return newError(ErrHookExecutionFailed, err.Error(), nil, err)
	}
	return nil
}

// parsePayload sanitizes and validates hctx.Data in place. belongsToMany id
// arrays are split off first since validation drops undeclared keys.
func (e *Endpoints) parsePayload(hctx *hooks.Context, mode validation.Mode) ([]adapter.RelationWrite, error) {
	data := hctx.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	relations, data, err := e.extractRelations(data)
	if err != nil {
		return nil, err
	}
	if e.resource.Sanitization != nil {
		data = security.Sanitize(data, e.resource.Sanitization)
	}
	if own := e.resource.Ownership; own != nil && mode == validation.ModeCreate && hctx.User != nil {
		if v, ok := data[own.Field]; !ok || v == nil || v == "" {
			data[own.Field] = hctx.User.ID
		}
	}

	parsed, err := e.validator.Parse(e.resource.Schema, data, mode)
	if err != nil {
		var verrs *validation.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, newError(ErrValidationFailed, "", verrs.Fields, err)
		}
		return nil, newError(ErrValidationFailed, err.Error(), nil, err)
	}
	if mode == validation.ModeUpdate {
		delete(parsed, "id")
	}
	hctx.Data = parsed
	return relations, nil
}

func (e *Endpoints) extractRelations(data map[string]interface{}) ([]adapter.RelationWrite, map[string]interface{}, error) {
	var names []string
	for name, rel := range e.model.Relationships {
		if rel.Type != schema.RelationshipBelongsToMany {
			continue
		}
		if _, ok := data[name]; ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, data, nil
	}
	sort.Strings(names)

	rest := make(map[string]interface{}, len(data))
	for k, v := range data {
		rest[k] = v
	}
	relations := make([]adapter.RelationWrite, 0, len(names))
	for _, name := range names {
		ids, ok := toIDs(data[name])
		if !ok {
			return nil, nil, newError(ErrValidationFailed, "", map[string][]string{
				name: {"must be an array of ids"},
			}, nil)
		}
		relations = append(relations, adapter.RelationWrite{Relationship: e.model.Relationships[name], IDs: ids})
		delete(rest, name)
	}
	return relations, rest, nil
}

// toIDs accepts an array of ids or of objects carrying an id
func toIDs(v interface{}) ([]interface{}, bool) {
	var items []interface{}
	switch list := v.(type) {
	case []interface{}:
		items = list
	case []string:
		for _, s := range list {
			items = append(items, s)
		}
	case nil:
		return []interface{}{}, true
	default:
		return nil, false
	}
	ids := make([]interface{}, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			id, has := m["id"]
			if !has || id == nil {
				return nil, false
			}
			ids = append(ids, id)
			continue
		}
		if item == nil {
			return nil, false
		}
		ids = append(ids, item)
	}
	return ids, true
}

// authorize runs the permission function, the scope check and the ownership check
func (e *Endpoints) authorize(hctx *hooks.Context) error {
	op := hctx.Operation
	if perm := e.resource.Permissions[op]; perm != nil && !perm(hctx) {
		return forbidden("Permission denied")
	}
	if !security.HasRequiredScopes(effectiveScopes(hctx), e.resource.Scopes[op]) {
		return forbidden("Insufficient scopes")
	}

	own := e.resource.Ownership
	if own == nil {
		return nil
	}
	admin := e.resource.ownershipStrategy() == security.Flexible &&
		security.IsAdmin(hctx.User, hctx.Scopes, own.AdminScopes)

	switch op {
	case hooks.OpCreate:
		if admin {
			return nil
		}
		if hctx.User == nil || hctx.User.ID == "" {
			return forbidden("Authentication required")
		}
		if fmt.Sprint(hctx.Data[own.Field]) != hctx.User.ID {
			return forbidden("Cannot create records owned by another user")
		}
	case hooks.OpRead, hooks.OpUpdate, hooks.OpDelete:
		if admin {
			return nil
		}
		if !security.CheckOwnership(e.resource.ownershipStrategy(), hctx.Existing, own.Field, hctx.User, own.AdminScopes) {
			return forbidden("Not the owner of this resource")
		}
		if v, ok := hctx.Data[own.Field]; ok && op == hooks.OpUpdate && fmt.Sprint(v) != hctx.User.ID {
			return forbidden("Cannot transfer ownership")
		}
	case hooks.OpList:
		if !admin && (hctx.User == nil || hctx.User.ID == "") {
			return forbidden("Authentication required")
		}
	}
	return nil
}

// ownerFilter is the condition restricting a list to the acting user's records
func (e *Endpoints) ownerFilter(hctx *hooks.Context) (adapter.Where, bool) {
	own := e.resource.Ownership
	if own == nil {
		return adapter.Where{}, false
	}
	if e.resource.ownershipStrategy() == security.Flexible && security.IsAdmin(hctx.User, hctx.Scopes, own.AdminScopes) {
		return adapter.Where{}, false
	}
	return adapter.Eq(own.Field, hctx.UserID()), true
}

func assignID(data map[string]interface{}) {
	if v, ok := data["id"]; !ok || v == nil || v == "" {
		data["id"] = uuid.NewString()
	}
}

func (e *Endpoints) checkRateLimit(hctx *hooks.Context) error {
	if e.limiter == nil || e.rateLimit.Max <= 0 || e.rateLimit.Window <= 0 {
		return nil
	}
	client := hctx.Metadata.IP
	if client == "" {
		client = "local"
	}
	key := client + ":" + string(hctx.Operation) + ":" + e.resource.Name
	info, err := e.limiter.Allow(hctx, key, e.rateLimit.Window, e.rateLimit.Max)
	if err != nil {
		// the limiter fails open
		e.logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !info.Allowed {
		rerr := newError(ErrRateLimitExceeded, "", nil, nil)
		rerr.RateLimit = info
		return rerr
	}
	return nil
}

func (e *Endpoints) validateReferences(hctx *hooks.Context) error {
	rv, ok := e.adapter.(adapter.ReferenceValidator)
	if !ok {
		return nil
	}
	err := rv.ValidateReferences(hctx, e.resource.Name, hctx.Data)
	if err == nil {
		return nil
	}
	var refErr *adapter.ReferenceError
	if errors.As(err, &refErr) {
		return newError(ErrValidationFailed, "", map[string][]string{
			refErr.Field: {refErr.Error()},
		}, err)
	}
	return e.storageError(hctx, err)
}

// store creates (where == nil) or updates the record and writes its
// many-to-many associations, atomically when the adapter supports it
func (e *Endpoints) store(hctx *hooks.Context, where []adapter.Where, relations []adapter.RelationWrite) (adapter.Record, error) {
	name := e.resource.Name
	if rw, ok := e.adapter.(adapter.RelationalWriter); ok && len(relations) > 0 {
		var rec adapter.Record
		var err error
		if where == nil {
			rec, err = rw.CreateWithRelations(hctx, name, hctx.Data, relations)
		} else {
			rec, err = rw.UpdateWithRelations(hctx, name, where, hctx.Data, relations)
		}
		if err != nil {
			return nil, e.storageError(hctx, err)
		}
		return rec, nil
	}

	var rec adapter.Record
	var err error
	if where == nil {
		rec, err = e.adapter.Create(hctx, name, hctx.Data)
	} else {
		rec, err = e.adapter.Update(hctx, name, where, hctx.Data)
	}
	if err != nil {
		return nil, e.storageError(hctx, err)
	}
	if rec == nil {
		return nil, nil
	}
	for _, rw := range relations {
		if err := e.resolver.ManageManyToMany(hctx, name, rw.Relationship.Name, rec["id"], relationships.Set, rw.IDs); err != nil {
			return nil, e.storageError(hctx, err)
		}
	}
	return rec, nil
}

// present attaches the requested relationships and applies the projection
func (e *Endpoints) present(ctx context.Context, rec adapter.Record, inc *adapter.Include, sel []string) (adapter.Record, error) {
	resolved, err := e.resolver.Resolve(ctx, e.resource.Name, rec, inc)
	if err != nil {
		return nil, e.resolveError(err)
	}
	return project(resolved, sel, inc), nil
}

// restore converts a record decoded from the cache back to the types a
// storage read produces: field values through the model's field types and
// attached relationships recursively through their target models.
func (e *Endpoints) restore(model string, rec adapter.Record) adapter.Record {
	m, ok := e.registry.Get(model)
	if !ok || rec == nil {
		return rec
	}
	out := adapter.UnmarshalRecord(rec, m.Fields)
	for name, rel := range m.Relationships {
		v, present := out[name]
		if !present || v == nil {
			continue
		}
		switch val := v.(type) {
		case map[string]interface{}:
			out[name] = e.restore(rel.Target, val)
		case []interface{}:
			list := make([]adapter.Record, 0, len(val))
			for _, item := range val {
				if child, ok := item.(map[string]interface{}); ok {
					list = append(list, e.restore(rel.Target, child))
				}
			}
			out[name] = list
		}
	}
	return out
}

func (e *Endpoints) resolveError(err error) error {
	if errors.Is(err, relationships.ErrUnknownRelationship) {
		return newError(ErrBadRequest, err.Error(), nil, err)
	}
	e.logger.Error("relationship resolution failed", zap.Error(err))
	return adapterFailure(err)
}

func (e *Endpoints) storageError(hctx *hooks.Context, err error) error {
	e.logger.Error("storage call failed",
		zap.String("operation", string(hctx.Operation)),
		zap.String("id", hctx.ID),
		zap.Error(err))
	return adapterFailure(err)
}

func (e *Endpoints) invalidate(hctx *hooks.Context) {
	if e.cache != nil {
		e.cache.Invalidate(hctx, e.resource.Name)
	}
}

// complete runs the after-hooks and emits the audit event
func (e *Endpoints) complete(hctx *hooks.Context, t hooks.HookType) {
	e.executor.RunAfter(hctx, t)
	e.executor.Audit(hctx)
}

// cacheScope separates cached results per user when visibility depends on ownership
func (e *Endpoints) cacheScope(hctx *hooks.Context) string {
	if e.resource.Ownership == nil {
		return ""
	}
	return "user=" + hctx.UserID()
}

func (e *Endpoints) hasField(name string) bool {
	if name == "id" {
		return true
	}
	_, ok := e.model.Field(name)
	return ok
}

// project keeps the id, the selected fields and the attached relationships
func project(rec adapter.Record, sel []string, inc *adapter.Include) adapter.Record {
	if len(sel) == 0 || rec == nil {
		return rec
	}
	out := make(adapter.Record, len(sel)+1)
	if id, ok := rec["id"]; ok {
		out["id"] = id
	}
	for _, f := range sel {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	for _, name := range inc.Names() {
		if v, ok := rec[name]; ok {
			out[name] = v
		}
	}
	return out
}

func effectiveScopes(hctx *hooks.Context) []string {
	if hctx.User == nil {
		return hctx.Scopes
	}
	out := append([]string(nil), hctx.Scopes...)
	out = append(out, hctx.User.Scopes...)
	return append(out, hctx.User.Roles...)
}

func idWhere(id string) []adapter.Where {
	return []adapter.Where{adapter.Eq("id", id)}
}

func idString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// includeKey renders an include tree canonically for cache keys
func includeKey(inc *adapter.Include) string {
	if inc.Empty() {
		return ""
	}
	var b strings.Builder
	for i, name := range inc.Names() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
		if child := inc.Relations[name]; !child.Empty() {
			b.WriteString("(" + includeKey(child) + ")")
		}
	}
	if inc.Depth > 0 {
		fmt.Fprintf(&b, "|%d", inc.Depth)
	}
	return b.String()
}

func joinSelect(sel []string) string {
	s := append([]string(nil), sel...)
	sort.Strings(s)
	return strings.Join(s, ",")
}
