package notification

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ScheduleEvent persists a future event. Cron expressions resolve to
// their next occurrence; the event fires once.
func (m *Manager) ScheduleEvent(ctx context.Context, p EventParams) (ScheduledEvent, error) {
	now := m.now()

	at := p.TimeOfOccur
	if p.Cron != "" {
		next, err := NextOccurrence(p.Cron, p.Timezone, now)
		if err != nil {
			return ScheduledEvent{}, err
		}
		at = next
	}
	if !at.After(now) {
		return ScheduledEvent{}, fmt.Errorf("%w: %s", ErrEventInPast, at.Format(time.RFC3339))
	}

	e := &ScheduledEvent{
		ID:          uuid.New().String(),
		TimeOfOccur: at,
		Description: p.Description,
		ToolToCall:  p.ToolToCall,
		Arguments:   p.Arguments,
		CreatedAt:   now,
		Cron:        p.Cron,
		Timezone:    p.Timezone,
	}
	*e = e.Clone()

	m.mu.Lock()
	if err := m.store.AppendScheduledEvent(ctx, e.Clone()); err != nil {
		m.mu.Unlock()
		return ScheduledEvent{}, &PersistenceError{Op: "append scheduled event", Err: err}
	}
	m.events = append(m.events, e)
	m.eventsByID[e.ID] = e
	pending := len(m.events)
	out := e.Clone()
	m.mu.Unlock()

	m.metrics.SetPendingEvents(pending)
	m.logger.Info().
		Str("eventId", out.ID).
		Time("timeOfOccur", out.TimeOfOccur).
		Str("toolToCall", out.ToolToCall).
		Msg("Event scheduled")

	m.emit(Event{Type: EventScheduled, ScheduledEvent: &out})

	return out, nil
}

// CancelScheduledEvent removes a pending event. Cancelling an id that is
// unknown, already fired or already cancelled returns ErrNotFound.
func (m *Manager) CancelScheduledEvent(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.eventsByID[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: scheduled event %s", ErrNotFound, id)
	}

	if err := m.store.RemoveScheduledEvent(ctx, id); err != nil {
		m.mu.Unlock()
		return &PersistenceError{Op: "remove scheduled event", Err: err}
	}
	m.removeEventLocked(id)
	pending := len(m.events)
	out := e.Clone()
	m.mu.Unlock()

	m.metrics.SetPendingEvents(pending)
	m.logger.Info().Str("eventId", id).Msg("Scheduled event cancelled")

	m.emit(Event{Type: EventCancelled, ScheduledEvent: &out})

	return nil
}

// FireDue removes every event due at or before now and runs its reactive
// tool, if any. An event whose removal cannot be persisted stays pending
// and is retried on the next call.
func (m *Manager) FireDue(ctx context.Context, now time.Time) []ScheduledEvent {
	m.mu.Lock()
	var due []ScheduledEvent
	for _, e := range append([]*ScheduledEvent(nil), m.events...) {
		if e.TimeOfOccur.After(now) {
			continue
		}
		if err := m.store.RemoveScheduledEvent(ctx, e.ID); err != nil {
			m.logger.Error().
				Err(err).
				Str("eventId", e.ID).
				Msg("Failed to remove due event, will retry")
			continue
		}
		m.removeEventLocked(e.ID)
		due = append(due, e.Clone())
	}
	pending := len(m.events)
	m.mu.Unlock()

	if len(due) == 0 {
		return nil
	}
	m.metrics.SetPendingEvents(pending)

	for i := range due {
		e := due[i]
		m.metrics.RecordEventFired()
		m.logger.Info().
			Str("eventId", e.ID).
			Str("description", e.Description).
			Str("toolToCall", e.ToolToCall).
			Msg("Scheduled event fired")

		ev := Event{Type: EventFired, ScheduledEvent: &e}
		if result, ran := m.execute(ctx, e.ToolToCall, e.Arguments); ran {
			ev.Execution = &result
		}
		m.emit(ev)
	}

	return due
}

// ListScheduledEvents returns pending events, oldest first
func (m *Manager) ListScheduledEvents() []ScheduledEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ScheduledEvent, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) removeEventLocked(id string) {
	delete(m.eventsByID, id)
	for i, e := range m.events {
		if e.ID == id {
			m.events = append(m.events[:i], m.events[i+1:]...)
			return
		}
	}
}
