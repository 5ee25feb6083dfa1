package hooks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrHookFailed wraps the error returned by a before-hook
var ErrHookFailed = errors.New("hook execution failed")

// HookError reports which hook failed
type HookError struct {
	Type HookType
	Name string
	Err  error
}

func (e *HookError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s hook %s: %v", e.Type, e.Name, e.Err)
	}
	return fmt.Sprintf("%s hook: %v", e.Type, e.Err)
}

// Unwrap matches both ErrHookFailed and the hook's own error
func (e *HookError) Unwrap() []error {
	return []error{ErrHookFailed, e.Err}
}

// Executor executes lifecycle hooks and audit logging for one resource
type Executor struct {
	registry   *Registry
	asyncQueue *AsyncQueue
	audit      AuditLogger
	logger     *zap.Logger
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithAsyncQueue runs async hooks and audit dispatch on the queue
func WithAsyncQueue(q *AsyncQueue) ExecutorOption {
	return func(e *Executor) { e.asyncQueue = q }
}

// WithAuditLogger enables audit events
func WithAuditLogger(l AuditLogger) ExecutorOption {
	return func(e *Executor) { e.audit = l }
}

// WithLogger sets the logger hook and audit failures are reported to
func WithLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates a new hook executor
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: NewRegistry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register registers a hook
func (e *Executor) Register(hookType HookType, hook *Hook) {
	e.registry.Register(hookType, hook)
}

// RegisterFunc registers a synchronous hook function
func (e *Executor) RegisterFunc(hookType HookType, name string, fn HookFunc) {
	if fn == nil {
		return
	}
	e.registry.Register(hookType, &Hook{Name: name, Fn: fn})
}

// HasHooks returns true if there are any hooks registered for the given type
func (e *Executor) HasHooks(hookType HookType) bool {
	return e.registry.HasHooks(hookType)
}

// AuditEnabled reports whether an audit logger is configured
func (e *Executor) AuditEnabled() bool {
	return e.audit != nil
}

// RunBefore runs before-hooks in registration order. The first failure stops
// the chain and is returned as a *HookError.
func (e *Executor) RunBefore(ctx *Context, hookType HookType) error {
	for _, hook := range e.registry.GetHooks(hookType) {
		if err := hook.Fn(ctx); err != nil {
			return &HookError{Type: hookType, Name: hook.Name, Err: err}
		}
	}
	return nil
}

// RunAfter runs after-hooks. The storage call has already succeeded, so
// failures are logged and never returned.
func (e *Executor) RunAfter(ctx *Context, hookType HookType) {
	for _, hook := range e.registry.GetHooks(hookType) {
		if hook.Async && e.asyncQueue != nil {
			e.enqueueAsyncHook(ctx, hook)
			continue
		}
		if err := hook.Fn(ctx); err != nil {
			e.logger.Warn("after-hook failed",
				zap.String("hook", hookType.String()),
				zap.String("name", hook.Name),
				zap.String("resource", ctx.Resource),
				zap.Error(err))
		}
	}
}

// Audit hands the operation's audit event to the configured logger. Failures
// are logged and swallowed.
func (e *Executor) Audit(ctx *Context) {
	if e.audit == nil {
		return
	}
	event := NewAuditEvent(ctx)

	if e.asyncQueue != nil {
		err := e.asyncQueue.Enqueue(AsyncTask{
			Name: "audit_" + ctx.Resource,
			Fn: func(qctx context.Context) error {
				return e.audit.Log(qctx, event)
			},
		})
		if err == nil {
			return
		}
		e.logger.Warn("failed to enqueue audit event, logging inline", zap.Error(err))
	}

	if err := e.audit.Log(ctx, event); err != nil {
		e.logger.Warn("audit logging failed",
			zap.String("resource", event.Resource),
			zap.String("operation", string(event.Operation)),
			zap.Error(err))
	}
}

// enqueueAsyncHook queues an after-hook with a detached copy of the context
func (e *Executor) enqueueAsyncHook(ctx *Context, hook *Hook) {
	snap := ctx.snapshot(context.Background())
	err := e.asyncQueue.Enqueue(AsyncTask{
		Name: fmt.Sprintf("%s_%s", hook.Type, ctx.Resource),
		Fn: func(qctx context.Context) error {
			snap.Context = qctx
			return hook.Fn(snap)
		},
	})
	if err != nil {
		e.logger.Warn("failed to enqueue async hook",
			zap.String("hook", hook.Type.String()),
			zap.String("name", hook.Name),
			zap.Error(err))
	}
}
