package notification

import "context"

// Snapshot is everything a Store holds
type Snapshot struct {
	Notifications   []Notification            `json:"notifications"`
	ScheduledEvents []ScheduledEvent          `json:"scheduled_events"`
	ToolConfigs     map[string]map[string]any `json:"tool_configs"`
}

// Store is the durable backing for notifications, scheduled events and
// tool configuration. Every method must be durable before it returns nil.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	AppendNotification(ctx context.Context, n Notification) error
	UpdateNotification(ctx context.Context, n Notification) error
	AppendScheduledEvent(ctx context.Context, e ScheduledEvent) error
	RemoveScheduledEvent(ctx context.Context, id string) error
	SaveToolConfig(ctx context.Context, name string, cfg map[string]any) error
	Close() error
}
