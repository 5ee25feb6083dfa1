package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/armelgeek/better-query/internal/orm/adapter"
	"github.com/armelgeek/better-query/internal/orm/schema"
)

// AuditModelName is the model audit events are persisted into
const AuditModelName = "audit_logs"

// AuditEvent records one successful operation
type AuditEvent struct {
	UserID    string                 `json:"userId,omitempty"`
	Resource  string                 `json:"resource"`
	Operation Operation              `json:"operation"`
	RecordID  string                 `json:"recordId,omitempty"`
	Before    map[string]interface{} `json:"before,omitempty"`
	After     map[string]interface{} `json:"after,omitempty"`
	IP        string                 `json:"ip,omitempty"`
	UserAgent string                 `json:"userAgent,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// AuditLogger receives audit events
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
}

// AuditFunc adapts a function to AuditLogger
type AuditFunc func(ctx context.Context, event AuditEvent) error

// Log calls f
func (f AuditFunc) Log(ctx context.Context, event AuditEvent) error {
	return f(ctx, event)
}

// NewAuditEvent builds the audit event of a completed operation
func NewAuditEvent(ctx *Context) AuditEvent {
	event := AuditEvent{
		UserID:    ctx.UserID(),
		Resource:  ctx.Resource,
		Operation: ctx.Operation,
		RecordID:  ctx.ID,
		Before:    deepCopyRecord(ctx.Existing),
		IP:        ctx.Metadata.IP,
		UserAgent: ctx.Metadata.UserAgent,
		Timestamp: time.Now().UTC(),
	}
	if after, ok := ctx.Result.(map[string]interface{}); ok {
		event.After = deepCopyRecord(after)
		if event.RecordID == "" && after["id"] != nil {
			event.RecordID = fmt.Sprint(after["id"])
		}
	}
	return event
}

// ZapAuditLogger writes audit events to a zap logger
type ZapAuditLogger struct {
	logger *zap.Logger
}

// NewZapAuditLogger creates an audit logger writing at info level
func NewZapAuditLogger(logger *zap.Logger) *ZapAuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAuditLogger{logger: logger.Named("audit")}
}

// Log writes the event
func (l *ZapAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	l.logger.Info("audit",
		zap.String("user_id", event.UserID),
		zap.String("resource", event.Resource),
		zap.String("operation", string(event.Operation)),
		zap.String("record_id", event.RecordID),
		zap.Any("before", event.Before),
		zap.Any("after", event.After),
		zap.String("ip", event.IP),
		zap.String("user_agent", event.UserAgent),
		zap.Time("timestamp", event.Timestamp),
	)
	return nil
}

// AdapterAuditLogger persists audit events through a storage adapter
type AdapterAuditLogger struct {
	adapter adapter.Adapter
}

// NewAdapterAuditLogger creates an audit logger storing into the audit_logs model
func NewAdapterAuditLogger(a adapter.Adapter) *AdapterAuditLogger {
	return &AdapterAuditLogger{adapter: a}
}

// Log stores the event as one row
func (l *AdapterAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	row := adapter.Record{
		"id":        uuid.New().String(),
		"userId":    event.UserID,
		"resource":  event.Resource,
		"operation": string(event.Operation),
		"recordId":  event.RecordID,
		"ip":        event.IP,
		"userAgent": event.UserAgent,
		"timestamp": event.Timestamp,
	}
	if event.Before != nil {
		row["before"] = event.Before
	}
	if event.After != nil {
		row["after"] = event.After
	}
	if _, err := l.adapter.Create(ctx, AuditModelName, row); err != nil {
		return fmt.Errorf("store audit event: %w", err)
	}
	return nil
}

// AuditModel is the model backing AdapterAuditLogger, for migration
func AuditModel() *schema.Model {
	m := schema.NewModel(AuditModelName)
	str := func(required bool) *schema.FieldAttribute {
		return &schema.FieldAttribute{Type: schema.TypeString, Required: required}
	}
	m.Fields["userId"] = str(false)
	m.Fields["resource"] = str(true)
	m.Fields["operation"] = str(true)
	m.Fields["recordId"] = str(false)
	m.Fields["ip"] = str(false)
	m.Fields["userAgent"] = str(false)
	m.Fields["before"] = &schema.FieldAttribute{Type: schema.TypeJSON}
	m.Fields["after"] = &schema.FieldAttribute{Type: schema.TypeJSON}
	m.Fields["timestamp"] = &schema.FieldAttribute{Type: schema.TypeDate, Required: true}
	return m
}
