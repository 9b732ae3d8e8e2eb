package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// ToolKey is the context key for the tool being checked or executed
	ToolKey ContextKey = "tool"
	// NotificationIDKey is the context key for the notification being handled
	NotificationIDKey ContextKey = "notification_id"
	// RequestIDKey is the context key for the inbound API request
	RequestIDKey ContextKey = "request_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID        string
	Tool           string
	NotificationID string
	RequestID      string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithTool adds a tool name to the context
func WithTool(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ToolKey, name)
}

// WithNotificationID adds a notification ID to the context
func WithNotificationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, NotificationIDKey, id)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetTool retrieves the tool name from the context
func GetTool(ctx context.Context) string {
	if name, ok := ctx.Value(ToolKey).(string); ok {
		return name
	}
	return ""
}

// GetNotificationID retrieves the notification ID from the context
func GetNotificationID(ctx context.Context) string {
	if id, ok := ctx.Value(NotificationIDKey).(string); ok {
		return id
	}
	return ""
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:        GetTraceID(ctx),
		Tool:           GetTool(ctx),
		NotificationID: GetNotificationID(ctx),
		RequestID:      GetRequestID(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.Tool != "" {
		ctx = WithTool(ctx, tc.Tool)
	}
	if tc.NotificationID != "" {
		ctx = WithNotificationID(ctx, tc.NotificationID)
	}
	if tc.RequestID != "" {
		ctx = WithRequestID(ctx, tc.RequestID)
	}
	return ctx
}

// NewCheckContext starts a fresh trace for one scheduler tick of a tool
func NewCheckContext(ctx context.Context, toolName string) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	return WithTool(ctx, toolName)
}
