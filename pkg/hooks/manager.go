// Package hooks runs user shell scripts when notifications change state,
// e.g. to raise a desktop alert when a tool triggers.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/vigil/internal/metrics"
	"github.com/harun/vigil/pkg/notification"
	"github.com/rs/zerolog"
)

// Daemon lifecycle events, alongside the notification event types
const (
	EventDaemonStartup  = "daemon.startup"
	EventDaemonShutdown = "daemon.shutdown"
)

const defaultTimeout = 30 * time.Second

// Hook defines a lifecycle event hook.
type Hook struct {
	ID      string
	Event   string
	Script  string
	Timeout time.Duration
	Enabled bool
}

// Config configures a Hook manager.
type Config struct {
	Enabled bool
	Hooks   []Hook
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Manager executes configured hooks for lifecycle events.
type Manager struct {
	enabled bool
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu           sync.RWMutex
	hooksByEvent map[string][]Hook

	wg     sync.WaitGroup
	closed bool
}

// NewManager creates a hook manager.
func NewManager(cfg Config) (*Manager, error) {
	manager := &Manager{
		enabled:      cfg.Enabled,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With().Str("component", "hooks").Logger(),
		hooksByEvent: make(map[string][]Hook),
	}

	if !cfg.Enabled {
		return manager, nil
	}

	for _, hook := range cfg.Hooks {
		if !hook.Enabled {
			continue
		}
		event := strings.TrimSpace(hook.Event)
		if event == "" {
			return nil, fmt.Errorf("hook event is required")
		}
		if !knownEvent(event) {
			return nil, fmt.Errorf("hook %q: unknown event %q", hook.ID, event)
		}
		if strings.TrimSpace(hook.Script) == "" {
			return nil, fmt.Errorf("hook script is required for event %q", event)
		}
		if hook.Timeout <= 0 {
			hook.Timeout = defaultTimeout
		}
		manager.hooksByEvent[event] = append(manager.hooksByEvent[event], hook)
	}

	return manager, nil
}

// Events lists the event names hooks can subscribe to
func Events() []string {
	return []string{
		EventDaemonStartup,
		EventDaemonShutdown,
		string(notification.EventNotificationCreated),
		string(notification.EventNotificationResponded),
		string(notification.EventNotificationExecuted),
		string(notification.EventScheduled),
		string(notification.EventCancelled),
		string(notification.EventFired),
	}
}

func knownEvent(event string) bool {
	for _, e := range Events() {
		if e == event {
			return true
		}
	}
	return false
}

// Count returns the number of active hooks
func (m *Manager) Count() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, hooks := range m.hooksByEvent {
		n += len(hooks)
	}
	return n
}

// Trigger executes hooks registered for an event.
func (m *Manager) Trigger(ctx context.Context, event string, data map[string]any) error {
	if m == nil || !m.enabled {
		return nil
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return fmt.Errorf("event is required")
	}

	m.mu.RLock()
	hooks := append([]Hook(nil), m.hooksByEvent[event]...)
	m.mu.RUnlock()
	if len(hooks) == 0 {
		return nil
	}

	var errs []error
	for _, hook := range hooks {
		if err := m.executeHook(ctx, event, hook, data); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Handle runs the hooks for a manager event in the background. Manager
// subscribers must not block, so failures are only logged.
func (m *Manager) Handle(ev notification.Event) {
	if m == nil || !m.enabled {
		return
	}

	m.mu.Lock()
	if m.closed || len(m.hooksByEvent[string(ev.Type)]) == 0 {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	data := EventData(ev)
	go func() {
		defer m.wg.Done()
		if err := m.Trigger(context.Background(), string(ev.Type), data); err != nil {
			m.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("Hook failed")
		}
	}()
}

// Close waits for background hooks to finish, bounded by ctx
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EventData flattens a manager event into hook variables
func EventData(ev notification.Event) map[string]any {
	data := map[string]any{}
	if ev.Action != "" {
		data["action"] = string(ev.Action)
	}

	if n := ev.Notification; n != nil {
		data["notification_id"] = n.ID
		data["description"] = n.Description
		data["state"] = string(n.State)
		if n.SourceTool != "" {
			data["source_tool"] = n.SourceTool
		}
		if n.ToolToCall != "" {
			data["tool"] = n.ToolToCall
		}
	}

	if e := ev.ScheduledEvent; e != nil {
		data["event_id"] = e.ID
		data["description"] = e.Description
		data["time_of_occur"] = e.TimeOfOccur.Format(time.RFC3339)
		if e.ToolToCall != "" {
			data["tool"] = e.ToolToCall
		}
	}

	if x := ev.Execution; x != nil {
		data["execution_status"] = x.Status
		if x.Message != "" {
			data["execution_message"] = x.Message
		}
	}

	return data
}

func (m *Manager) executeHook(ctx context.Context, event string, hook Hook, data map[string]any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	hookID := hook.ID
	if strings.TrimSpace(hookID) == "" {
		hookID = event
	}

	runCtx := ctx
	cancel := func() {}
	if hook.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, hook.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", hook.Script)
	cmd.Env = buildHookEnvironment(event, data)

	start := time.Now()
	output, err := cmd.CombinedOutput()
	outputText := strings.TrimSpace(string(output))
	m.metrics.RecordHook(event, err == nil)
	if err != nil {
		if outputText != "" {
			return fmt.Errorf("hook %s failed: %w: %s", hookID, err, outputText)
		}
		return fmt.Errorf("hook %s failed: %w", hookID, err)
	}

	m.logger.Debug().
		Str("event", event).
		Str("hook_id", hookID).
		Str("output", outputText).
		Dur("duration", time.Since(start)).
		Msg("Hook executed")

	return nil
}

func buildHookEnvironment(event string, data map[string]any) []string {
	env := append([]string{}, os.Environ()...)
	env = append(env, "VIGIL_HOOK_EVENT="+event)

	if len(data) == 0 {
		return env
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		envKey := "VIGIL_HOOK_" + normalizeEnvKey(key)
		env = append(env, envKey+"="+fmt.Sprintf("%v", data[key]))
	}
	return env
}

func normalizeEnvKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "UNKNOWN"
	}

	upper := strings.ToUpper(key)
	builder := strings.Builder{}
	builder.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			builder.WriteRune(r)
			continue
		}
		builder.WriteRune('_')
	}
	return builder.String()
}
