package daemon

import (
	"context"
	"time"
)

// EventLoop fires due scheduled events on a fixed poll interval
type EventLoop struct {
	daemon   *Daemon
	interval time.Duration
	now      func() time.Time
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	interval := d.config.Scheduler.EventPollInterval()
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &EventLoop{
		daemon:   d,
		interval: interval,
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled. Events that came due while the
// daemon was down fire on the first pass.
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.log.Info().Dur("interval", e.interval).Msg("Event loop started")

	e.processTasks(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.daemon.log.Info().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks(ctx)
		}
	}
}

// processTasks fires due events and refreshes the pending gauge
func (e *EventLoop) processTasks(ctx context.Context) {
	fired := e.daemon.manager.FireDue(ctx, e.now())
	if len(fired) > 0 {
		e.daemon.log.Debug().Int("fired", len(fired)).Msg("Scheduled events fired")
	}

	e.daemon.metrics.SetPendingEvents(len(e.daemon.manager.ListScheduledEvents()))
}
