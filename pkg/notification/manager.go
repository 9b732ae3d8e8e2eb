package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/vigil/internal/metrics"
	"github.com/harun/vigil/internal/tracing"
	"github.com/harun/vigil/pkg/tool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	tracerName = "vigil/notification"

	defaultExecuteTimeout = 60 * time.Second
)

// Config configures a Manager
type Config struct {
	Store    Store
	Registry *tool.Registry
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Now      func() time.Time

	// ExecuteTimeout bounds a reactive tool run triggered by approval or
	// by a fired scheduled event.
	ExecuteTimeout time.Duration
}

// Manager owns the notification and scheduled event collections.
// A single mutex serializes every mutation and is held across the store
// call, so ids and ordering never interleave.
type Manager struct {
	store          Store
	registry       *tool.Registry
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	now            func() time.Time
	executeTimeout time.Duration

	mu            sync.Mutex
	notifications []*Notification
	byID          map[string]*Notification
	events        []*ScheduledEvent
	eventsByID    map[string]*ScheduledEvent

	subMu       sync.RWMutex
	subscribers []func(Event)
}

// NewManager creates a manager with empty collections; call Load to
// restore persisted state.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ExecuteTimeout <= 0 {
		cfg.ExecuteTimeout = defaultExecuteTimeout
	}

	return &Manager{
		store:          cfg.Store,
		registry:       cfg.Registry,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger.With().Str("component", "notifications").Logger(),
		now:            cfg.Now,
		executeTimeout: cfg.ExecuteTimeout,
		byID:           make(map[string]*Notification),
		eventsByID:     make(map[string]*ScheduledEvent),
	}, nil
}

// Load replaces the in-memory collections with the store's contents and
// returns the persisted tool configurations.
func (m *Manager) Load(ctx context.Context) (map[string]map[string]any, error) {
	snap, err := m.store.Load(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.notifications = make([]*Notification, 0, len(snap.Notifications))
	m.byID = make(map[string]*Notification, len(snap.Notifications))
	for i := range snap.Notifications {
		n := snap.Notifications[i].Clone()
		m.notifications = append(m.notifications, &n)
		m.byID[n.ID] = &n
	}
	sort.SliceStable(m.notifications, func(i, j int) bool {
		return m.notifications[i].CreatedAt.Before(m.notifications[j].CreatedAt)
	})

	m.events = make([]*ScheduledEvent, 0, len(snap.ScheduledEvents))
	m.eventsByID = make(map[string]*ScheduledEvent, len(snap.ScheduledEvents))
	for i := range snap.ScheduledEvents {
		e := snap.ScheduledEvents[i].Clone()
		m.events = append(m.events, &e)
		m.eventsByID[e.ID] = &e
	}
	sort.SliceStable(m.events, func(i, j int) bool {
		return m.events[i].CreatedAt.Before(m.events[j].CreatedAt)
	})
	m.metrics.SetPendingEvents(len(m.events))

	m.logger.Info().
		Int("notifications", len(m.notifications)).
		Int("scheduledEvents", len(m.events)).
		Int("toolConfigs", len(snap.ToolConfigs)).
		Msg("Notification state loaded")

	return snap.ToolConfigs, nil
}

// Subscribe registers fn to receive every event. fn runs synchronously
// after the change is persisted and must not block.
func (m *Manager) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	m.subMu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.subMu.Unlock()
}

func (m *Manager) emit(ev Event) {
	ev.Timestamp = m.now()

	m.subMu.RLock()
	subs := append([]func(Event){}, m.subscribers...)
	m.subMu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// Notify creates and persists a pending notification. On store failure
// the notification is dropped and a *PersistenceError returned.
func (m *Manager) Notify(ctx context.Context, p Params) (Notification, error) {
	m.mu.Lock()

	now := m.now()
	n := &Notification{
		ID:          uuid.New().String(),
		TimeOfOccur: p.TimeOfOccur,
		Description: p.Description,
		ToolToCall:  p.ToolToCall,
		Arguments:   p.Arguments,
		CreatedAt:   now,
		State:       StatePending,
		SourceTool:  p.SourceTool,
		Data:        p.Data,
	}
	if n.TimeOfOccur.IsZero() {
		n.TimeOfOccur = now
	}
	if n.Description == "" && p.SourceTool != "" {
		n.Description = fmt.Sprintf("%s triggered", p.SourceTool)
	}
	// detach from the caller's slices
	*n = n.Clone()

	if err := m.store.AppendNotification(ctx, n.Clone()); err != nil {
		m.mu.Unlock()
		m.metrics.RecordLost(p.SourceTool)
		return Notification{}, &PersistenceError{Op: "append notification", Err: err}
	}

	m.notifications = append(m.notifications, n)
	m.byID[n.ID] = n
	out := n.Clone()
	m.mu.Unlock()

	m.metrics.RecordNotification(p.SourceTool)
	m.logger.Info().
		Str("notificationId", out.ID).
		Str("sourceTool", out.SourceTool).
		Str("toolToCall", out.ToolToCall).
		Msg("Notification created")

	m.emit(Event{Type: EventNotificationCreated, Notification: &out})

	return out, nil
}

// Respond applies a human decision to a pending notification. Only the
// first response to a notification succeeds. Approving a notification
// bound to a reactive tool runs that tool once; failure to run it never
// blocks the approval.
func (m *Manager) Respond(ctx context.Context, id string, action Action) (Notification, error) {
	target, ok := action.target()
	if !ok {
		return Notification{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	ctx, span := tracing.StartSpan(tracing.WithNotificationID(ctx, id), tracerName, "notification.respond",
		attribute.String("notification.id", id),
		attribute.String("notification.action", string(action)),
	)
	var spanErr error
	defer func() { tracing.EndSpan(span, spanErr) }()

	m.mu.Lock()
	n, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		spanErr = fmt.Errorf("%w: notification %s", ErrNotFound, id)
		return Notification{}, spanErr
	}
	if n.State != StatePending {
		state := n.State
		m.mu.Unlock()
		spanErr = fmt.Errorf("%w: notification %s is already %s", ErrInvalidTransition, id, state)
		return Notification{}, spanErr
	}

	prev := n.Clone()
	respondedAt := m.now()
	n.State = target
	n.RespondedAt = &respondedAt

	if err := m.store.UpdateNotification(ctx, n.Clone()); err != nil {
		*n = prev
		m.mu.Unlock()
		spanErr = &PersistenceError{Op: "update notification", Err: err}
		return Notification{}, spanErr
	}
	out := n.Clone()
	m.mu.Unlock()

	m.metrics.RecordResponse(string(action))
	m.logger.Info().
		Str("notificationId", id).
		Str("action", string(action)).
		Msg("Notification responded")

	m.emit(Event{Type: EventNotificationResponded, Action: action, Notification: &out})

	if target != StateApproved {
		return out, nil
	}

	result, ran := m.execute(ctx, out.ToolToCall, out.Arguments)
	if !ran {
		return out, nil
	}

	return m.recordExecution(ctx, id, result), nil
}

// recordExecution stores the approval side effect on the notification.
// The approval itself is already durable; a failure here is only logged.
func (m *Manager) recordExecution(ctx context.Context, id string, result tool.ExecuteResult) Notification {
	m.mu.Lock()
	n := m.byID[id]
	n.Execution = &result
	if err := m.store.UpdateNotification(ctx, n.Clone()); err != nil {
		m.logger.Error().
			Err(err).
			Str("notificationId", id).
			Msg("Failed to persist execution result")
	}
	out := n.Clone()
	m.mu.Unlock()

	m.emit(Event{Type: EventNotificationExecuted, Notification: &out, Execution: &result})
	return out
}

// execute runs a reactive tool once. It reports false when there was
// nothing to run.
func (m *Manager) execute(ctx context.Context, toolName string, args []any) (tool.ExecuteResult, bool) {
	if toolName == "" {
		return tool.ExecuteResult{}, false
	}

	d, err := m.registry.Get(toolName)
	if err != nil {
		m.logger.Warn().
			Str("tool", toolName).
			Msg("Approved action references unknown tool, nothing executed")
		m.metrics.RecordExecution(toolName, "missing")
		return tool.ExecuteResult{}, false
	}

	reactive, ok := d.Reactive()
	if !ok {
		m.logger.Warn().
			Str("tool", toolName).
			Str("kind", string(d.Kind())).
			Msg("Approved action references non-reactive tool, nothing executed")
		m.metrics.RecordExecution(toolName, "not_reactive")
		return tool.ExecuteResult{}, false
	}

	// Runs on a detached context: an aborted API request must not abort
	// an approved action halfway.
	execCtx, span := tracing.StartSpan(tracing.Detach(ctx), tracerName, "notification.execute",
		attribute.String("tool", toolName),
	)
	execCtx, cancel := context.WithTimeout(execCtx, m.executeTimeout)
	defer cancel()

	start := m.now()
	result := runReactive(execCtx, reactive, d.Config(), args)

	var spanErr error
	if result.Status != tool.StatusSuccess {
		spanErr = fmt.Errorf("%s", result.Message)
	}
	tracing.EndSpan(span, spanErr)

	m.metrics.RecordExecution(toolName, result.Status)
	m.logger.Info().
		Str("tool", toolName).
		Str("status", result.Status).
		Str("message", result.Message).
		Dur("duration", m.now().Sub(start)).
		Msg("Reactive tool executed")

	return result, true
}

// runReactive converts a panicking tool into an error result
func runReactive(ctx context.Context, r tool.Reactive, cfg tool.Config, args []any) (result tool.ExecuteResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = tool.ExecuteError("panic: %v", rec)
		}
	}()
	return r.Execute(ctx, cfg, args...)
}

// GetNotification returns a notification by id
func (m *Manager) GetNotification(id string) (Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.byID[id]
	if !ok {
		return Notification{}, fmt.Errorf("%w: notification %s", ErrNotFound, id)
	}
	return n.Clone(), nil
}

// ListNotifications returns every notification, oldest first
func (m *Manager) ListNotifications() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		out = append(out, n.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
