package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Scheduler metrics
	ToolChecksTotal   *prometheus.CounterVec
	ToolCheckDuration *prometheus.HistogramVec
	ToolTriggersTotal *prometheus.CounterVec
	ToolsRunning      prometheus.Gauge

	// Notification metrics
	NotificationsCreatedTotal   *prometheus.CounterVec
	NotificationResponsesTotal  *prometheus.CounterVec
	NotificationsLostTotal      *prometheus.CounterVec
	ToolExecutionsTotal         *prometheus.CounterVec
	ScheduledEventsFiredTotal   prometheus.Counter
	ScheduledEventsPendingGauge prometheus.Gauge

	// Webhook metrics
	WebhookRequestsTotal *prometheus.CounterVec

	// Hook metrics
	HookRunsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ToolChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_checks_total",
				Help: "Total number of active tool checks",
			},
			[]string{"tool", "status"},
		),
		ToolCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_check_duration_seconds",
				Help:    "Duration of active tool checks in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		ToolTriggersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_triggers_total",
				Help: "Total number of checks that reported a trigger",
			},
			[]string{"tool"},
		),
		ToolsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tools_running",
				Help: "Number of active tools currently scheduled",
			},
		),

		NotificationsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_created_total",
				Help: "Total number of notifications created",
			},
			[]string{"tool"},
		),
		NotificationResponsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_responses_total",
				Help: "Total number of human responses to notifications",
			},
			[]string{"action"},
		),
		NotificationsLostTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_lost_total",
				Help: "Total number of triggered notifications that could not be persisted",
			},
			[]string{"tool"},
		),
		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of reactive tool executions",
			},
			[]string{"tool", "status"},
		),
		ScheduledEventsFiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduled_events_fired_total",
				Help: "Total number of scheduled events fired",
			},
		),
		ScheduledEventsPendingGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scheduled_events_pending",
				Help: "Number of scheduled events waiting to fire",
			},
		),

		WebhookRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_requests_total",
				Help: "Total number of inbound trigger webhooks by outcome",
			},
			[]string{"source", "outcome"},
		),
		HookRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hook_runs_total",
				Help: "Total number of event hook script runs",
			},
			[]string{"event", "status"},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.ToolChecksTotal)
	m.registry.MustRegister(m.ToolCheckDuration)
	m.registry.MustRegister(m.ToolTriggersTotal)
	m.registry.MustRegister(m.ToolsRunning)

	m.registry.MustRegister(m.NotificationsCreatedTotal)
	m.registry.MustRegister(m.NotificationResponsesTotal)
	m.registry.MustRegister(m.NotificationsLostTotal)
	m.registry.MustRegister(m.ToolExecutionsTotal)
	m.registry.MustRegister(m.ScheduledEventsFiredTotal)
	m.registry.MustRegister(m.ScheduledEventsPendingGauge)

	m.registry.MustRegister(m.WebhookRequestsTotal)
	m.registry.MustRegister(m.HookRunsTotal)
}

// RecordCheck records one completed check. A nil receiver is a no-op so
// components can run without metrics.
func (m *Metrics) RecordCheck(toolName, status string, triggered bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ToolChecksTotal.WithLabelValues(toolName, status).Inc()
	m.ToolCheckDuration.WithLabelValues(toolName).Observe(elapsed.Seconds())
	if triggered {
		m.ToolTriggersTotal.WithLabelValues(toolName).Inc()
	}
}

// SetRunning sets the running tools gauge
func (m *Metrics) SetRunning(n int) {
	if m == nil {
		return
	}
	m.ToolsRunning.Set(float64(n))
}

// RecordNotification counts a created notification
func (m *Metrics) RecordNotification(source string) {
	if m == nil {
		return
	}
	m.NotificationsCreatedTotal.WithLabelValues(source).Inc()
}

// RecordLost counts a triggered notification that was dropped
func (m *Metrics) RecordLost(source string) {
	if m == nil {
		return
	}
	m.NotificationsLostTotal.WithLabelValues(source).Inc()
}

// RecordResponse counts a human response
func (m *Metrics) RecordResponse(action string) {
	if m == nil {
		return
	}
	m.NotificationResponsesTotal.WithLabelValues(action).Inc()
}

// RecordExecution counts a reactive tool execution
func (m *Metrics) RecordExecution(toolName, status string) {
	if m == nil {
		return
	}
	m.ToolExecutionsTotal.WithLabelValues(toolName, status).Inc()
}

// RecordEventFired counts a fired scheduled event
func (m *Metrics) RecordEventFired() {
	if m == nil {
		return
	}
	m.ScheduledEventsFiredTotal.Inc()
}

// SetPendingEvents sets the pending scheduled events gauge
func (m *Metrics) SetPendingEvents(n int) {
	if m == nil {
		return
	}
	m.ScheduledEventsPendingGauge.Set(float64(n))
}

// RecordWebhook counts an inbound webhook by outcome
// (accepted, rejected, unauthorized, limited, failed)
func (m *Metrics) RecordWebhook(source, outcome string) {
	if m == nil {
		return
	}
	m.WebhookRequestsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordHook counts an event hook run
func (m *Metrics) RecordHook(event string, ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	m.HookRunsTotal.WithLabelValues(event, status).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
