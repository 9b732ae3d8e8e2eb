package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("future time", func(t *testing.T) {
		f := newFixture(t)
		at := f.clock.Now().Add(time.Hour)

		e, err := f.manager.ScheduleEvent(ctx, EventParams{TimeOfOccur: at, Description: "rebalance", ToolToCall: "trader"})
		require.NoError(t, err)
		assert.NotEmpty(t, e.ID)
		assert.True(t, e.TimeOfOccur.Equal(at))

		list := f.manager.ListScheduledEvents()
		require.Len(t, list, 1)
		assert.Equal(t, e.ID, list[0].ID)
	})

	t.Run("past time is rejected", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.manager.ScheduleEvent(ctx, EventParams{TimeOfOccur: f.clock.Now().Add(-time.Minute)})
		assert.ErrorIs(t, err, ErrEventInPast)
		assert.Empty(t, f.manager.ListScheduledEvents())
	})

	t.Run("cron expression resolves to next occurrence", func(t *testing.T) {
		f := newFixture(t)

		e, err := f.manager.ScheduleEvent(ctx, EventParams{Cron: "0 12 * * *", Timezone: "UTC", Description: "noon"})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), e.TimeOfOccur.UTC())
		assert.Equal(t, "0 12 * * *", e.Cron)
	})

	t.Run("bad cron expression", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.manager.ScheduleEvent(ctx, EventParams{Cron: "every tuesday"})
		assert.ErrorIs(t, err, ErrInvalidSchedule)
	})

	t.Run("persistence failure", func(t *testing.T) {
		f := newFixture(t)
		f.store.failAppend = true

		_, err := f.manager.ScheduleEvent(ctx, EventParams{TimeOfOccur: f.clock.Now().Add(time.Hour)})
		assert.ErrorIs(t, err, ErrPersistence)
		assert.Empty(t, f.manager.ListScheduledEvents())
	})

	t.Run("listed oldest first", func(t *testing.T) {
		f := newFixture(t)
		base := f.clock.Now()

		late, err := f.manager.ScheduleEvent(ctx, EventParams{TimeOfOccur: base.Add(3 * time.Hour)})
		require.NoError(t, err)
		early, err := f.manager.ScheduleEvent(ctx, EventParams{TimeOfOccur: base.Add(time.Hour)})
		require.NoError(t, err)

		list := f.manager.ListScheduledEvents()
		require.Len(t, list, 2)
		assert.Equal(t, late.ID, list[0].ID)
		assert.Equal(t, early.ID, list[1].ID)
	})
}

func TestCancelScheduledEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("second cancel is not found", func(t *testing.T) {
		f := newFixture(t)
		e, err := f.manager.ScheduleEvent(ctx, EventParams{TimeOfOccur: f.clock.Now().Add(time.Hour)})
		require.NoError(t, err)

		require.NoError(t, f.manager.CancelScheduledEvent(ctx, e.ID))
		assert.Empty(t, f.manager.ListScheduledEvents())

		err = f.manager.CancelScheduledEvent(ctx, e.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.manager.CancelScheduledEvent(ctx, "nope"), ErrNotFound)
	})

	t.Run("persistence failure keeps the event", func(t *testing.T) {
		f := newFixture(t)
		e, err := f.manager.ScheduleEvent(ctx, EventParams{TimeOfOccur: f.clock.Now().Add(time.Hour)})
		require.NoError(t, err)

		f.store.failRemove = true
		assert.ErrorIs(t, f.manager.CancelScheduledEvent(ctx, e.ID), ErrPersistence)
		assert.Len(t, f.manager.ListScheduledEvents(), 1)
	})
}

func TestFireDue(t *testing.T) {
	ctx := context.Background()

	t.Run("fires due events and runs their tool", func(t *testing.T) {
		f := newFixture(t)
		base := f.clock.Now()

		due, err := f.manager.ScheduleEvent(ctx, EventParams{
			TimeOfOccur: base.Add(time.Minute),
			ToolToCall:  "trader",
			Arguments:   []any{"buy", "ETH", 2.0},
		})
		require.NoError(t, err)
		later, err := f.manager.ScheduleEvent(ctx, EventParams{TimeOfOccur: base.Add(time.Hour)})
		require.NoError(t, err)

		var fired []Event
		f.manager.Subscribe(func(ev Event) {
			if ev.Type == EventFired {
				fired = append(fired, ev)
			}
		})

		got := f.manager.FireDue(ctx, base.Add(2*time.Minute))
		require.Len(t, got, 1)
		assert.Equal(t, due.ID, got[0].ID)
		assert.Equal(t, int32(1), f.executor.calls.Load())
		assert.Equal(t, []any{"buy", "ETH", 2.0}, f.executor.args)

		require.Len(t, fired, 1)
		require.NotNil(t, fired[0].Execution)
		assert.Equal(t, "success", fired[0].Execution.Status)

		remaining := f.manager.ListScheduledEvents()
		require.Len(t, remaining, 1)
		assert.Equal(t, later.ID, remaining[0].ID)

		assert.ErrorIs(t, f.manager.CancelScheduledEvent(ctx, due.ID), ErrNotFound)
		assert.Empty(t, f.manager.FireDue(ctx, base.Add(2*time.Minute)))
	})

	t.Run("removal failure retries later", func(t *testing.T) {
		f := newFixture(t)
		base := f.clock.Now()

		_, err := f.manager.ScheduleEvent(ctx, EventParams{TimeOfOccur: base.Add(time.Minute)})
		require.NoError(t, err)

		f.store.failRemove = true
		assert.Empty(t, f.manager.FireDue(ctx, base.Add(time.Hour)))
		assert.Len(t, f.manager.ListScheduledEvents(), 1)

		f.store.failRemove = false
		assert.Len(t, f.manager.FireDue(ctx, base.Add(time.Hour)), 1)
		assert.Empty(t, f.manager.ListScheduledEvents())
	})
}

func TestNextOccurrence(t *testing.T) {
	from := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)

	t.Run("standard expression", func(t *testing.T) {
		next, err := NextOccurrence("0 9 * * *", "", from.In(time.UTC))
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), next.UTC())
	})

	t.Run("descriptor", func(t *testing.T) {
		next, err := NextOccurrence("@hourly", "UTC", from)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), next.UTC())
	})

	t.Run("timezone", func(t *testing.T) {
		next, err := NextOccurrence("0 9 * * *", "Asia/Jakarta", from)
		require.NoError(t, err)
		// 09:00 WIB is 02:00 UTC, already past on the 10th
		assert.Equal(t, time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC), next.UTC())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := NextOccurrence("", "", from)
		assert.ErrorIs(t, err, ErrInvalidSchedule)

		_, err = NextOccurrence("61 * * * *", "", from)
		assert.ErrorIs(t, err, ErrInvalidSchedule)

		_, err = NextOccurrence("0 9 * * *", "Mars/Olympus", from)
		assert.ErrorIs(t, err, ErrInvalidSchedule)
	})
}
