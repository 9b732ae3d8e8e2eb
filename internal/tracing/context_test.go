package tracing

import (
	"context"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestContextValues(t *testing.T) {
	tests := []struct {
		name string
		with func(context.Context, string) context.Context
		get  func(context.Context) string
	}{
		{"trace id", WithTraceID, GetTraceID},
		{"tool", WithTool, GetTool},
		{"notification id", WithNotificationID, GetNotificationID},
		{"request id", WithRequestID, GetRequestID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if got := tt.get(ctx); got != "" {
				t.Errorf("Expected empty value, got %s", got)
			}

			ctx = tt.with(ctx, "value-1")
			if got := tt.get(ctx); got != "value-1" {
				t.Errorf("Expected value-1, got %s", got)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithTool(ctx, "btc")
	ctx = WithNotificationID(ctx, "n-1")

	tc := FromContext(ctx)

	if tc.TraceID != "trace-123" {
		t.Errorf("Expected trace ID trace-123, got %s", tc.TraceID)
	}
	if tc.Tool != "btc" {
		t.Errorf("Expected tool btc, got %s", tc.Tool)
	}
	if tc.NotificationID != "n-1" {
		t.Errorf("Expected notification ID n-1, got %s", tc.NotificationID)
	}
	if tc.RequestID != "" {
		t.Errorf("Expected empty request ID, got %s", tc.RequestID)
	}
}

func TestNewContext(t *testing.T) {
	tc := &TraceContext{TraceID: "trace-1", Tool: "social", RequestID: "req-1"}

	ctx := NewContext(context.Background(), tc)

	if GetTraceID(ctx) != "trace-1" {
		t.Error("Trace ID not set")
	}
	if GetTool(ctx) != "social" {
		t.Error("Tool not set")
	}
	if GetRequestID(ctx) != "req-1" {
		t.Error("Request ID not set")
	}
	if GetNotificationID(ctx) != "" {
		t.Error("Notification ID should be empty")
	}
}

func TestNewCheckContext(t *testing.T) {
	ctx1 := NewCheckContext(context.Background(), "btc")
	ctx2 := NewCheckContext(context.Background(), "btc")

	if GetTool(ctx1) != "btc" {
		t.Errorf("Expected tool btc, got %s", GetTool(ctx1))
	}
	if GetTraceID(ctx1) == "" || GetTraceID(ctx1) == GetTraceID(ctx2) {
		t.Error("Each check should start its own trace")
	}
}
