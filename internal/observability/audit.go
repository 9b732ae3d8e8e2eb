// Package observability records the audit trail of human decisions and
// scheduled event activity.
package observability

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harun/vigil/pkg/notification"
	"github.com/harun/vigil/pkg/tool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditEvent represents a structured event for the audit log
type AuditEvent struct {
	Type      string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor,omitempty"` // "user" or "scheduler"
	Action    string         `json:"action"`          // e.g. "approve", "cancel", "fire"
	Status    string         `json:"status"`          // "success", "failure", "skipped"
	Metadata  map[string]any `json:"metadata,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
}

// Audit event types
const (
	TypeDecision  = "decision"
	TypeSchedule  = "schedule"
	TypeExecution = "execution"
)

// AuditLogger writes audit events as JSON lines
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   io.Closer
}

// NewAuditLogger writes to w
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{
		logger: zerolog.New(w),
	}
}

// OpenAuditLogger appends to the file at path
func OpenAuditLogger(path string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	a := NewAuditLogger(file)
	a.file = file
	return a, nil
}

// Record emits an audit event to the log and, when the context carries a
// recording span, as a span event.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()

		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.actor", event.Actor),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("event_type", event.Type).
		Time("timestamp", event.Timestamp).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("status", event.Status)

	if event.TraceID != "" {
		entry.Str("trace_id", event.TraceID)
	}
	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Send()
}

// Handle maps a manager event to an audit record. Creation and scheduling
// are not decisions and are left to the regular log.
func (a *AuditLogger) Handle(ev notification.Event) {
	ctx := context.Background()

	switch ev.Type {
	case notification.EventNotificationResponded:
		meta := map[string]any{}
		if n := ev.Notification; n != nil {
			meta["notification_id"] = n.ID
			meta["source_tool"] = n.SourceTool
			meta["state"] = string(n.State)
			if n.ToolToCall != "" {
				meta["tool_to_call"] = n.ToolToCall
			}
		}
		a.Record(ctx, AuditEvent{
			Type:      TypeDecision,
			Timestamp: ev.Timestamp,
			Actor:     "user",
			Action:    string(ev.Action),
			Status:    "success",
			Metadata:  meta,
		})

	case notification.EventNotificationExecuted:
		meta := map[string]any{}
		status := "skipped"
		if n := ev.Notification; n != nil {
			meta["notification_id"] = n.ID
			meta["tool"] = n.ToolToCall
		}
		if ev.Execution != nil {
			status = ev.Execution.Status
			if ev.Execution.Message != "" {
				meta["message"] = ev.Execution.Message
			}
		}
		a.Record(ctx, AuditEvent{
			Type:      TypeExecution,
			Timestamp: ev.Timestamp,
			Actor:     "user",
			Action:    "execute",
			Status:    status,
			Metadata:  meta,
		})

	case notification.EventCancelled:
		a.Record(ctx, AuditEvent{
			Type:      TypeSchedule,
			Timestamp: ev.Timestamp,
			Actor:     "user",
			Action:    "cancel",
			Status:    "success",
			Metadata:  scheduledEventMetadata(ev.ScheduledEvent),
		})

	case notification.EventFired:
		meta := scheduledEventMetadata(ev.ScheduledEvent)
		status := "success"
		if ev.Execution != nil {
			meta["execution_status"] = ev.Execution.Status
			if ev.Execution.Status != tool.StatusSuccess {
				status = "failure"
			}
		}
		a.Record(ctx, AuditEvent{
			Type:      TypeSchedule,
			Timestamp: ev.Timestamp,
			Actor:     "scheduler",
			Action:    "fire",
			Status:    status,
			Metadata:  meta,
		})
	}
}

func scheduledEventMetadata(e *notification.ScheduledEvent) map[string]any {
	meta := map[string]any{}
	if e == nil {
		return meta
	}
	meta["event_id"] = e.ID
	meta["description"] = e.Description
	if e.ToolToCall != "" {
		meta["tool_to_call"] = e.ToolToCall
	}
	if e.Cron != "" {
		meta["cron"] = e.Cron
	}
	return meta
}

// Close closes the audit logger's file handle
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}
