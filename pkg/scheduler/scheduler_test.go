package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harun/vigil/pkg/notification"
	"github.com/harun/vigil/pkg/store"
	"github.com/harun/vigil/pkg/tool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted is an Active tool whose Check behavior is set per test
type scripted struct {
	name     string
	interval time.Duration
	behavior func(ctx context.Context, cfg tool.Config) (tool.CheckResult, error)

	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (p *scripted) Metadata() tool.Metadata {
	return tool.Metadata{
		Name:        p.name,
		Kind:        tool.KindActive,
		Description: "scripted test tool",
		ConfigSchema: tool.Schema{
			"interval": {Type: tool.FieldFloat},
		},
	}
}

func (p *scripted) DefaultInterval() time.Duration { return p.interval }

func (p *scripted) Check(ctx context.Context, cfg tool.Config) (tool.CheckResult, error) {
	p.calls.Add(1)
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		max := p.maxInFlight.Load()
		if n <= max || p.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}

	if p.behavior == nil {
		return tool.CheckResult{Status: tool.StatusOK}, nil
	}
	return p.behavior(ctx, cfg)
}

// echo is a Reactive tool used to exercise ErrNotActive
type echo struct{}

func (echo) Metadata() tool.Metadata {
	return tool.Metadata{Name: "echo", Kind: tool.KindReactive}
}

func (echo) Execute(ctx context.Context, cfg tool.Config, args ...any) tool.ExecuteResult {
	return tool.ExecuteResult{Status: tool.StatusSuccess}
}

// fakeNotifier records what the scheduler forwarded
type fakeNotifier struct {
	mu     sync.Mutex
	params []notification.Params
	fail   bool
}

func (n *fakeNotifier) Notify(ctx context.Context, p notification.Params) (notification.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return notification.Notification{}, errors.New("disk full")
	}
	n.params = append(n.params, p)
	return notification.Notification{ID: "n", Description: p.Description}, nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.params)
}

func (n *fakeNotifier) last() notification.Params {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.params[len(n.params)-1]
}

func newTestScheduler(t *testing.T, notifier Notifier, checkTimeout time.Duration, tools ...tool.Tool) (*Scheduler, *tool.Registry) {
	t.Helper()

	registry := tool.NewRegistry()
	for _, tl := range tools {
		d, err := tool.New(tl, nil)
		require.NoError(t, err)
		require.NoError(t, registry.Register(d))
	}

	s, err := New(Config{
		Registry:     registry,
		Notifier:     notifier,
		CheckTimeout: checkTimeout,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.StopAll(ctx)
	})

	return s, registry
}

func triggering(description string) func(context.Context, tool.Config) (tool.CheckResult, error) {
	return func(context.Context, tool.Config) (tool.CheckResult, error) {
		return tool.CheckResult{
			Status:      tool.StatusOK,
			Trigger:     true,
			Description: description,
			ToolToCall:  "trader",
			Arguments:   []any{"sell", "BTC", 0.5},
			Data:        map[string]any{"price": 46000.0},
		}, nil
	}
}

func TestNew(t *testing.T) {
	_, err := New(Config{Notifier: &fakeNotifier{}})
	assert.Error(t, err)

	_, err = New(Config{Registry: tool.NewRegistry()})
	assert.Error(t, err)

	registry := tool.NewRegistry()
	s, err := New(Config{Registry: registry, Notifier: &fakeNotifier{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultCheckTimeout, s.checkTimeout)

	_, err = New(Config{Registry: registry, Notifier: &fakeNotifier{}})
	assert.ErrorIs(t, err, tool.ErrRunningClaimed, "a second scheduler cannot drive the same registry")
}

func TestRunOnce(t *testing.T) {
	t.Run("trigger produces exactly one notification", func(t *testing.T) {
		notifier := &fakeNotifier{}
		p := &scripted{name: "btc_monitor", interval: time.Hour, behavior: triggering("BTC above 45000")}
		s, _ := newTestScheduler(t, notifier, time.Second, p)

		result, err := s.RunOnce(context.Background(), "btc_monitor")
		require.NoError(t, err)
		assert.True(t, result.Trigger)
		require.Equal(t, 1, notifier.count())

		got := notifier.last()
		assert.Equal(t, "btc_monitor", got.SourceTool)
		assert.Equal(t, "BTC above 45000", got.Description)
		assert.Equal(t, "trader", got.ToolToCall)
		assert.Equal(t, []any{"sell", "BTC", 0.5}, got.Arguments)
		assert.Equal(t, 46000.0, got.Data["price"])
	})

	t.Run("no trigger produces nothing", func(t *testing.T) {
		notifier := &fakeNotifier{}
		p := &scripted{name: "quiet", interval: time.Hour}
		s, _ := newTestScheduler(t, notifier, time.Second, p)

		result, err := s.RunOnce(context.Background(), "quiet")
		require.NoError(t, err)
		assert.False(t, result.Trigger)
		assert.Equal(t, tool.StatusOK, result.Status)
		assert.Equal(t, 0, notifier.count())
	})

	t.Run("error with trigger never notifies", func(t *testing.T) {
		notifier := &fakeNotifier{}
		p := &scripted{name: "confused", interval: time.Hour, behavior: func(context.Context, tool.Config) (tool.CheckResult, error) {
			return tool.CheckResult{Status: tool.StatusError, Trigger: true}, nil
		}}
		s, _ := newTestScheduler(t, notifier, time.Second, p)

		result, err := s.RunOnce(context.Background(), "confused")
		require.NoError(t, err)
		assert.False(t, result.Trigger)
		assert.Equal(t, 0, notifier.count())
	})

	t.Run("check error becomes error status", func(t *testing.T) {
		notifier := &fakeNotifier{}
		p := &scripted{name: "flaky", interval: time.Hour, behavior: func(context.Context, tool.Config) (tool.CheckResult, error) {
			return tool.CheckResult{Trigger: true}, errors.New("feed unavailable")
		}}
		s, _ := newTestScheduler(t, notifier, time.Second, p)

		result, err := s.RunOnce(context.Background(), "flaky")
		require.NoError(t, err)
		assert.Equal(t, tool.StatusError, result.Status)
		assert.False(t, result.Trigger)
		assert.Equal(t, "feed unavailable", result.Data["error"])
		assert.Equal(t, 0, notifier.count())

		st, err := s.Status("flaky")
		require.NoError(t, err)
		assert.Equal(t, 1, st.Failures)
		assert.Equal(t, "feed unavailable", st.LastError)
	})

	t.Run("timeout becomes error status", func(t *testing.T) {
		notifier := &fakeNotifier{}
		release := make(chan struct{})
		p := &scripted{name: "slow", interval: time.Hour, behavior: func(ctx context.Context, cfg tool.Config) (tool.CheckResult, error) {
			<-release
			return tool.CheckResult{Status: tool.StatusOK, Trigger: true}, nil
		}}
		s, _ := newTestScheduler(t, notifier, 20*time.Millisecond, p)
		defer close(release)

		result, err := s.RunOnce(context.Background(), "slow")
		require.NoError(t, err)
		assert.Equal(t, tool.StatusError, result.Status)
		assert.False(t, result.Trigger)
		assert.Contains(t, result.Data["error"], "timed out")
		assert.Equal(t, 0, notifier.count())
	})

	t.Run("panic is recovered", func(t *testing.T) {
		notifier := &fakeNotifier{}
		p := &scripted{name: "broken", interval: time.Hour, behavior: func(context.Context, tool.Config) (tool.CheckResult, error) {
			panic("nil map")
		}}
		s, _ := newTestScheduler(t, notifier, time.Second, p)

		result, err := s.RunOnce(context.Background(), "broken")
		require.NoError(t, err)
		assert.Equal(t, tool.StatusError, result.Status)
		assert.Contains(t, result.Data["error"], "nil map")
	})

	t.Run("unknown and reactive tools", func(t *testing.T) {
		s, _ := newTestScheduler(t, &fakeNotifier{}, time.Second, echo{})

		_, err := s.RunOnce(context.Background(), "missing")
		assert.ErrorIs(t, err, tool.ErrToolNotFound)

		_, err = s.RunOnce(context.Background(), "echo")
		assert.ErrorIs(t, err, ErrNotActive)

		assert.ErrorIs(t, s.Start("echo"), ErrNotActive)
		assert.ErrorIs(t, s.Stop(context.Background(), "echo"), ErrNotActive)
		_, err = s.Status("echo")
		assert.ErrorIs(t, err, ErrNotActive)
	})
}

func TestStartStop(t *testing.T) {
	t.Run("loop checks repeatedly and stops cleanly", func(t *testing.T) {
		p := &scripted{name: "ticker", interval: 10 * time.Millisecond}
		s, registry := newTestScheduler(t, &fakeNotifier{}, time.Second, p)

		require.NoError(t, s.Start("ticker"))
		assert.True(t, registry.IsRunning("ticker"))

		require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

		require.NoError(t, s.Stop(context.Background(), "ticker"))
		assert.False(t, registry.IsRunning("ticker"))

		calls := p.calls.Load()
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, calls, p.calls.Load(), "no checks after stop")
	})

	t.Run("first check runs immediately", func(t *testing.T) {
		p := &scripted{name: "hourly", interval: time.Hour}
		s, _ := newTestScheduler(t, &fakeNotifier{}, time.Second, p)

		require.NoError(t, s.Start("hourly"))
		require.Eventually(t, func() bool {
			st, _ := s.Status("hourly")
			return st.NextCheckAt != nil
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, int32(1), p.calls.Load())

		st, err := s.Status("hourly")
		require.NoError(t, err)
		assert.True(t, st.Running)
		assert.Equal(t, 1, st.Checks)
		assert.WithinDuration(t, time.Now().Add(time.Hour), *st.NextCheckAt, time.Minute)
	})

	t.Run("double start keeps a single loop", func(t *testing.T) {
		p := &scripted{name: "dup", interval: 5 * time.Millisecond, behavior: func(context.Context, tool.Config) (tool.CheckResult, error) {
			time.Sleep(5 * time.Millisecond)
			return tool.CheckResult{Status: tool.StatusOK}, nil
		}}
		s, _ := newTestScheduler(t, &fakeNotifier{}, time.Second, p)

		require.NoError(t, s.Start("dup"))
		require.NoError(t, s.Start("dup"))

		require.Eventually(t, func() bool { return p.calls.Load() >= 5 }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, int32(1), p.maxInFlight.Load())
	})

	t.Run("stop of stopped tool is a no-op", func(t *testing.T) {
		p := &scripted{name: "idle", interval: time.Hour}
		s, _ := newTestScheduler(t, &fakeNotifier{}, time.Second, p)

		assert.NoError(t, s.Stop(context.Background(), "idle"))
		assert.ErrorIs(t, s.Start("missing"), tool.ErrToolNotFound)
	})

	t.Run("stop waits for in-flight check up to ctx", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{}, 1)
		p := &scripted{name: "blocked", interval: 5 * time.Millisecond, behavior: func(context.Context, tool.Config) (tool.CheckResult, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return tool.CheckResult{Status: tool.StatusOK}, nil
		}}
		s, registry := newTestScheduler(t, &fakeNotifier{}, 5*time.Second, p)

		require.NoError(t, s.Start("blocked"))
		<-started

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := s.Stop(ctx, "blocked")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, registry.IsRunning("blocked"))

		// The restarted loop waits for the old check before its own.
		require.NoError(t, s.Start("blocked"))
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(1), p.calls.Load())

		close(release)
		require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, int32(1), p.maxInFlight.Load())
	})

	t.Run("panic does not end the loop", func(t *testing.T) {
		var n atomic.Int32
		p := &scripted{name: "panicky", interval: 5 * time.Millisecond, behavior: func(context.Context, tool.Config) (tool.CheckResult, error) {
			if n.Add(1) == 1 {
				panic("first tick")
			}
			return tool.CheckResult{Status: tool.StatusOK}, nil
		}}
		s, _ := newTestScheduler(t, &fakeNotifier{}, time.Second, p)

		require.NoError(t, s.Start("panicky"))
		require.Eventually(t, func() bool {
			st, _ := s.Status("panicky")
			return st.Checks >= 3
		}, 2*time.Second, 5*time.Millisecond)

		st, err := s.Status("panicky")
		require.NoError(t, err)
		assert.Equal(t, 1, st.Failures)
	})

	t.Run("notifier failure does not end the loop", func(t *testing.T) {
		notifier := &fakeNotifier{fail: true}
		p := &scripted{name: "lossy", interval: 5 * time.Millisecond, behavior: triggering("lost")}
		s, _ := newTestScheduler(t, notifier, time.Second, p)

		require.NoError(t, s.Start("lossy"))
		require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, 0, notifier.count())
	})
}

func TestInterval(t *testing.T) {
	p := &scripted{name: "tunable", interval: time.Hour}
	s, registry := newTestScheduler(t, &fakeNotifier{}, time.Second, p)

	d, err := registry.Get("tunable")
	require.NoError(t, err)
	active, _ := d.Active()

	assert.Equal(t, time.Hour, s.interval(d, active))

	require.NoError(t, registry.UpdateConfig("tunable", map[string]any{"interval": 0.5}))
	assert.Equal(t, 500*time.Millisecond, s.interval(d, active))

	zero := &scripted{name: "zero"}
	d2, err := tool.New(zero, nil)
	require.NoError(t, err)
	a2, _ := d2.Active()
	assert.Equal(t, minInterval, s.interval(d2, a2))
}

func TestIntervalUpdateAppliesToRunningLoop(t *testing.T) {
	p := &scripted{name: "retuned", interval: 200 * time.Millisecond}
	s, registry := newTestScheduler(t, &fakeNotifier{}, time.Second, p)

	require.NoError(t, s.Start("retuned"))
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, registry.UpdateConfig("retuned", map[string]any{"interval": 0.01}))

	// One slow sleep remains, then the short interval takes over.
	require.Eventually(t, func() bool { return p.calls.Load() >= 6 }, 2*time.Second, 5*time.Millisecond)
}

func TestStatuses(t *testing.T) {
	a := &scripted{name: "a", interval: time.Hour}
	b := &scripted{name: "b", interval: time.Hour}
	s, _ := newTestScheduler(t, &fakeNotifier{}, time.Second, a, echo{}, b)

	require.NoError(t, s.Start("b"))
	require.Eventually(t, func() bool {
		st, _ := s.Status("b")
		return st.Checks == 1
	}, time.Second, 5*time.Millisecond)

	statuses := s.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "a", statuses[0].Tool)
	assert.False(t, statuses[0].Running)
	assert.Equal(t, 0, statuses[0].Checks)
	assert.Equal(t, "b", statuses[1].Tool)
	assert.True(t, statuses[1].Running)
	assert.Equal(t, 1, statuses[1].Checks)
	assert.Equal(t, tool.StatusOK, statuses[1].LastStatus)
	assert.NotNil(t, statuses[1].LastCheckAt)

	require.NoError(t, s.Stop(context.Background(), "b"))
	st, err := s.Status("b")
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Nil(t, st.NextCheckAt)
	assert.Equal(t, 1, st.Checks)
}

func TestRestartPreservesNotifications(t *testing.T) {
	ctx := context.Background()

	fs, err := store.NewFileStore(filepath.Join(t.TempDir(), "vigil.json"), zerolog.Nop())
	require.NoError(t, err)

	registry := tool.NewRegistry()
	p := &scripted{name: "btc_monitor", interval: 5 * time.Millisecond, behavior: triggering("BTC above 45000")}
	d, err := tool.New(p, nil)
	require.NoError(t, err)
	require.NoError(t, registry.Register(d))

	manager, err := notification.NewManager(notification.Config{Store: fs, Registry: registry, Logger: zerolog.Nop()})
	require.NoError(t, err)

	s, err := New(Config{Registry: registry, Notifier: manager, CheckTimeout: time.Second, Logger: zerolog.Nop()})
	require.NoError(t, err)

	require.NoError(t, s.Start("btc_monitor"))
	require.Eventually(t, func() bool { return len(manager.ListNotifications()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(ctx, "btc_monitor"))

	before := len(manager.ListNotifications())

	require.NoError(t, s.Start("btc_monitor"))
	require.Eventually(t, func() bool { return len(manager.ListNotifications()) > before }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(ctx, "btc_monitor"))

	snap, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(manager.ListNotifications()), len(snap.Notifications))
	for _, n := range snap.Notifications {
		assert.Equal(t, notification.StatePending, n.State)
		assert.Equal(t, "btc_monitor", n.SourceTool)
	}
}
