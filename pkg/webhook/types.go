package webhook

import (
	"context"
	"time"

	"github.com/harun/vigil/internal/metrics"
	"github.com/harun/vigil/pkg/notification"
	"github.com/rs/zerolog"
)

const (
	// DefaultSignatureHeader carries the HMAC of the raw body
	DefaultSignatureHeader = "X-Vigil-Signature"

	defaultRateLimit    = 60
	defaultMaxBodyBytes = 1 << 20
)

// Hook is one external source allowed to push triggers
type Hook struct {
	Source             string // URL segment, recorded as the notification's source
	Secret             string // HMAC secret; empty accepts unsigned requests
	SignatureHeader    string // default X-Vigil-Signature
	SignatureAlgorithm string // "sha256" (default) or "sha1"
	Description        string // used when the payload has none
}

// Notifier receives accepted triggers. *notification.Manager satisfies it.
type Notifier interface {
	Notify(ctx context.Context, p notification.Params) (notification.Notification, error)
}

// Config configures the trigger handler
type Config struct {
	Hooks              []Hook
	RateLimitPerMinute int   // per source, default 60
	MaxBodyBytes       int64 // default 1 MiB
	Notifier           Notifier
	Metrics            *metrics.Metrics
	Logger             zerolog.Logger
}

// Payload is the JSON body of a trigger request
type Payload struct {
	Description string         `json:"description"`
	TimeOfOccur *time.Time     `json:"time_of_occur,omitempty"`
	ToolToCall  string         `json:"which_tool_to_call,omitempty"`
	Arguments   []any          `json:"arguments,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Accepted is returned for a trigger that became a notification
type Accepted struct {
	NotificationID string             `json:"notification_id"`
	State          notification.State `json:"state"`
}
