package notification

import (
	"time"

	"github.com/harun/vigil/pkg/tool"
)

// State is a notification's lifecycle state
type State string

const (
	StatePending   State = "pending"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StateDismissed State = "dismissed"
)

// Terminal reports whether s accepts no further responses
func (s State) Terminal() bool {
	return s != StatePending
}

// Action is a human response to a pending notification
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionDismiss Action = "dismiss"
)

// target returns the state an action moves a pending notification into
func (a Action) target() (State, bool) {
	switch a {
	case ActionApprove:
		return StateApproved, true
	case ActionReject:
		return StateRejected, true
	case ActionDismiss:
		return StateDismissed, true
	default:
		return "", false
	}
}

// Notification is a triggered condition awaiting a human decision
type Notification struct {
	ID          string              `json:"id"`
	TimeOfOccur time.Time           `json:"time_of_occur"`
	Description string              `json:"description"`
	ToolToCall  string              `json:"which_tool_to_call,omitempty"`
	Arguments   []any               `json:"arguments,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	State       State               `json:"state"`
	SourceTool  string              `json:"source_tool,omitempty"`
	Data        map[string]any      `json:"data,omitempty"`
	RespondedAt *time.Time          `json:"responded_at,omitempty"`
	Execution   *tool.ExecuteResult `json:"execution,omitempty"`
}

// Clone returns a copy that shares no mutable state with n
func (n Notification) Clone() Notification {
	out := n
	if n.Arguments != nil {
		out.Arguments = append([]any(nil), n.Arguments...)
	}
	if n.Data != nil {
		out.Data = make(map[string]any, len(n.Data))
		for k, v := range n.Data {
			out.Data[k] = v
		}
	}
	if n.RespondedAt != nil {
		t := *n.RespondedAt
		out.RespondedAt = &t
	}
	if n.Execution != nil {
		exec := *n.Execution
		out.Execution = &exec
	}
	return out
}

// ScheduledEvent is planned work that fires at TimeOfOccur unless cancelled
type ScheduledEvent struct {
	ID          string    `json:"id"`
	TimeOfOccur time.Time `json:"time_of_occur"`
	Description string    `json:"description"`
	ToolToCall  string    `json:"which_tool_to_call,omitempty"`
	Arguments   []any     `json:"arguments,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Cron        string    `json:"cron,omitempty"`
	Timezone    string    `json:"timezone,omitempty"`
}

// Clone returns a copy that shares no mutable state with e
func (e ScheduledEvent) Clone() ScheduledEvent {
	out := e
	if e.Arguments != nil {
		out.Arguments = append([]any(nil), e.Arguments...)
	}
	return out
}

// Params describes a notification to raise
type Params struct {
	SourceTool  string
	TimeOfOccur time.Time
	Description string
	ToolToCall  string
	Arguments   []any
	Data        map[string]any
}

// EventParams describes a scheduled event. Either TimeOfOccur or Cron
// must be set; Cron wins when both are.
type EventParams struct {
	TimeOfOccur time.Time `json:"time_of_occur"`
	Cron        string    `json:"cron,omitempty"`
	Timezone    string    `json:"timezone,omitempty"`
	Description string    `json:"description"`
	ToolToCall  string    `json:"which_tool_to_call,omitempty"`
	Arguments   []any     `json:"arguments,omitempty"`
}

// EventType names a change observed by subscribers
type EventType string

const (
	EventNotificationCreated   EventType = "notification.created"
	EventNotificationResponded EventType = "notification.responded"
	EventNotificationExecuted  EventType = "notification.executed"
	EventScheduled             EventType = "event.scheduled"
	EventCancelled             EventType = "event.cancelled"
	EventFired                 EventType = "event.fired"
)

// Event is delivered to subscribers after a change has been persisted
type Event struct {
	Type           EventType           `json:"type"`
	Timestamp      time.Time           `json:"timestamp"`
	Action         Action              `json:"action,omitempty"`
	Notification   *Notification       `json:"notification,omitempty"`
	ScheduledEvent *ScheduledEvent     `json:"scheduled_event,omitempty"`
	Execution      *tool.ExecuteResult `json:"execution,omitempty"`
}
