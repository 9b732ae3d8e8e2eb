package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.Tool != "" {
		logger = logger.With().Str("tool", tc.Tool).Logger()
	}
	if tc.NotificationID != "" {
		logger = logger.With().Str("notification_id", tc.NotificationID).Logger()
	}
	if tc.RequestID != "" {
		logger = logger.With().Str("request_id", tc.RequestID).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext copies tracing values from source into target where target
// has none.
func MergeContext(target, source context.Context) context.Context {
	have := FromContext(target)
	tc := FromContext(source)

	missing := &TraceContext{}
	if have.TraceID == "" {
		missing.TraceID = tc.TraceID
	}
	if have.Tool == "" {
		missing.Tool = tc.Tool
	}
	if have.NotificationID == "" {
		missing.NotificationID = tc.NotificationID
	}
	if have.RequestID == "" {
		missing.RequestID = tc.RequestID
	}

	return NewContext(target, missing)
}

// Detach returns a context that keeps every value of ctx, including the
// active span, but is never cancelled by it.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
