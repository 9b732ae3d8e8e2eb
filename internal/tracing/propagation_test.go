package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPropagateToLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-123")
	ctx = WithTool(ctx, "btc")

	scoped := LoggerFromContext(ctx, logger)
	scoped.Info().Msg("checked")

	out := buf.String()
	if !strings.Contains(out, `"trace_id":"trace-123"`) {
		t.Errorf("Expected trace_id in log output, got %s", out)
	}
	if !strings.Contains(out, `"tool":"btc"`) {
		t.Errorf("Expected tool in log output, got %s", out)
	}
	if strings.Contains(out, "notification_id") {
		t.Errorf("Unexpected notification_id in log output, got %s", out)
	}
}

func TestMergeContext(t *testing.T) {
	source := WithTraceID(context.Background(), "trace-src")
	source = WithTool(source, "src-tool")
	source = WithRequestID(source, "req-1")

	target := WithTool(context.Background(), "target-tool")

	merged := MergeContext(target, source)

	if GetTraceID(merged) != "trace-src" {
		t.Error("Trace ID not merged")
	}
	if GetTool(merged) != "target-tool" {
		t.Error("Existing target value should win")
	}
	if GetRequestID(merged) != "req-1" {
		t.Error("Request ID not merged")
	}
	if GetNotificationID(merged) != "" {
		t.Error("Absent values should stay absent")
	}
}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithCancel(WithTraceID(context.Background(), "trace-1"))
	detached := Detach(parent)
	cancel()

	select {
	case <-detached.Done():
		t.Fatal("Detached context should not be cancelled with its parent")
	case <-time.After(10 * time.Millisecond):
	}

	if GetTraceID(detached) != "trace-1" {
		t.Error("Detached context lost its values")
	}
}
