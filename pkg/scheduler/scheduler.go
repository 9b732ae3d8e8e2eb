package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/vigil/internal/metrics"
	"github.com/harun/vigil/internal/tracing"
	"github.com/harun/vigil/pkg/notification"
	"github.com/harun/vigil/pkg/tool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	tracerName = "vigil/scheduler"

	// DefaultCheckTimeout bounds a single Check call
	DefaultCheckTimeout = 30 * time.Second

	minInterval = 10 * time.Millisecond
)

// Notifier turns a triggered check into a notification
type Notifier interface {
	Notify(ctx context.Context, p notification.Params) (notification.Notification, error)
}

// Config configures a Scheduler
type Config struct {
	Registry     *tool.Registry
	Notifier     Notifier
	CheckTimeout time.Duration
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Status is a point-in-time view of one active tool's loop
type Status struct {
	Tool        string     `json:"tool"`
	Running     bool       `json:"running"`
	Checks      int        `json:"checks"`
	Triggers    int        `json:"triggers"`
	Failures    int        `json:"failures"`
	LastCheckAt *time.Time `json:"last_check_at,omitempty"`
	LastStatus  string     `json:"last_status,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	NextCheckAt *time.Time `json:"next_check_at,omitempty"`
}

type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler runs one polling loop per started Active tool.
//
// Checks for a single tool never overlap: every check holds that tool's
// gate until Check has actually returned, so a timed-out check or a loop
// restarted while the previous check is in flight delays the next check
// instead of running beside it.
type Scheduler struct {
	registry     *tool.Registry
	setRunning   tool.RunningSetter
	notifier     Notifier
	checkTimeout time.Duration
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	now          func() time.Time

	mu    sync.Mutex
	loops map[string]*loop
	gates map[string]chan struct{}
	stats map[string]*Status
}

// New creates a scheduler with no running loops
func New(cfg Config) (*Scheduler, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	setRunning, err := cfg.Registry.ClaimRunning()
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		registry:     cfg.Registry,
		setRunning:   setRunning,
		notifier:     cfg.Notifier,
		checkTimeout: cfg.CheckTimeout,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With().Str("component", "scheduler").Logger(),
		now:          cfg.Now,
		loops:        make(map[string]*loop),
		gates:        make(map[string]chan struct{}),
		stats:        make(map[string]*Status),
	}, nil
}

func (s *Scheduler) active(name string) (*tool.Descriptor, tool.Active, error) {
	d, err := s.registry.Get(name)
	if err != nil {
		return nil, nil, err
	}
	active, ok := d.Active()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotActive, name)
	}
	return d, active, nil
}

// Start begins polling name. Starting a running tool is a no-op.
func (s *Scheduler) Start(name string) error {
	d, active, err := s.active(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.loops[name]; running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{cancel: cancel, done: make(chan struct{})}
	s.loops[name] = l

	if err := s.setRunning(name, true); err != nil {
		cancel()
		delete(s.loops, name)
		return err
	}
	s.metrics.SetRunning(len(s.loops))

	go s.run(ctx, d, active, l)

	s.logger.Info().Str("tool", name).Msg("Tool started")
	return nil
}

// Stop cancels name's loop and waits for it to exit, bounded by ctx.
// An in-flight check is never interrupted; it runs to completion or to
// its timeout. Stopping a stopped tool is a no-op.
func (s *Scheduler) Stop(ctx context.Context, name string) error {
	if _, _, err := s.active(name); err != nil {
		return err
	}

	s.mu.Lock()
	l, running := s.loops[name]
	if !running {
		s.mu.Unlock()
		return nil
	}
	delete(s.loops, name)
	_ = s.setRunning(name, false)
	s.metrics.SetRunning(len(s.loops))
	s.mu.Unlock()

	l.cancel()

	select {
	case <-l.done:
		s.logger.Info().Str("tool", name).Msg("Tool stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Str("tool", name).Msg("Tool stop requested, check still in flight")
		return fmt.Errorf("stop %s: %w", name, ctx.Err())
	}
}

// StopAll stops every running loop
func (s *Scheduler) StopAll(ctx context.Context) error {
	s.mu.Lock()
	names := make([]string, 0, len(s.loops))
	for name := range s.loops {
		names = append(names, name)
	}
	s.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := s.Stop(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunOnce performs one check of name immediately, outside its loop, and
// notifies on trigger exactly as a tick would. It waits for any check of
// the same tool already in flight.
func (s *Scheduler) RunOnce(ctx context.Context, name string) (tool.CheckResult, error) {
	d, active, err := s.active(name)
	if err != nil {
		return tool.CheckResult{}, err
	}

	if !s.acquire(ctx, name) {
		return tool.CheckResult{}, ctx.Err()
	}
	return s.check(ctx, d, active), nil
}

// Status returns the loop state of an Active tool
func (s *Scheduler) Status(name string) (Status, error) {
	if _, _, err := s.active(name); err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(name), nil
}

// Statuses returns the loop state of every Active tool in registration order
func (s *Scheduler) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Status{}
	for _, d := range s.registry.List() {
		if d.Kind() != tool.KindActive {
			continue
		}
		out = append(out, s.statusLocked(d.Name()))
	}
	return out
}

func (s *Scheduler) statusLocked(name string) Status {
	st := Status{Tool: name}
	if recorded, ok := s.stats[name]; ok {
		st = *recorded
	}
	_, st.Running = s.loops[name]
	if !st.Running {
		st.NextCheckAt = nil
	}
	return st
}

func (s *Scheduler) run(ctx context.Context, d *tool.Descriptor, active tool.Active, l *loop) {
	defer close(l.done)

	name := d.Name()
	for {
		if ctx.Err() != nil {
			return
		}
		if !s.acquire(ctx, name) {
			return
		}

		s.check(ctx, d, active)

		interval := s.interval(d, active)
		s.setNextCheck(name, s.now().Add(interval))

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// interval is re-read before every sleep so config updates apply on the
// next tick.
func (s *Scheduler) interval(d *tool.Descriptor, active tool.Active) time.Duration {
	if iv, ok := d.Config().Seconds("interval"); ok {
		return iv
	}
	if iv := active.DefaultInterval(); iv > 0 {
		return iv
	}
	return minInterval
}

func (s *Scheduler) gate(name string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gates[name]
	if !ok {
		g = make(chan struct{}, 1)
		s.gates[name] = g
	}
	return g
}

func (s *Scheduler) acquire(ctx context.Context, name string) bool {
	select {
	case s.gate(name) <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) release(name string) {
	<-s.gate(name)
}

type outcome struct {
	result tool.CheckResult
	err    error
}

// check performs one check. The caller holds the tool's gate; it is
// released when Check returns.
func (s *Scheduler) check(parent context.Context, d *tool.Descriptor, active tool.Active) tool.CheckResult {
	name := d.Name()

	// Stopping the loop must not cancel a check in flight.
	ctx := tracing.NewCheckContext(tracing.Detach(parent), name)
	ctx, span := tracing.StartSpan(ctx, tracerName, "scheduler.check", attribute.String("tool", name))
	logger := tracing.LoggerFromContext(ctx, s.logger)

	checkCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer s.release(name)
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrCheckPanic, r)}
			}
		}()
		result, err := active.Check(checkCtx, d.Config())
		done <- outcome{result: result, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-checkCtx.Done():
		out = outcome{err: fmt.Errorf("%w after %s", ErrCheckTimeout, s.checkTimeout)}
	}
	elapsed := time.Since(start)

	result := out.result
	switch {
	case out.err != nil:
		result = tool.FailedCheck(out.err)
		logger.Warn().
			Err(out.err).
			Dur("duration", elapsed).
			Msg("Check failed, treating as not triggered")
	case result.Status == tool.StatusError:
		result.Trigger = false
	case result.Status == "":
		result.Status = tool.StatusOK
	}

	s.metrics.RecordCheck(name, result.Status, result.Trigger, elapsed)
	s.recordCheck(name, result, out.err)
	span.SetAttributes(attribute.Bool("check.trigger", result.Trigger))

	logger.Debug().
		Str("status", result.Status).
		Bool("trigger", result.Trigger).
		Dur("duration", elapsed).
		Msg("Check completed")

	if result.Trigger {
		s.notify(ctx, name, result, logger)
	}

	tracing.EndSpan(span, out.err)
	return result
}

// notify forwards a triggered result. A store failure loses the
// notification; there is no retry.
func (s *Scheduler) notify(ctx context.Context, name string, result tool.CheckResult, logger zerolog.Logger) {
	n, err := s.notifier.Notify(ctx, notification.Params{
		SourceTool:  name,
		TimeOfOccur: s.now(),
		Description: result.Description,
		ToolToCall:  result.ToolToCall,
		Arguments:   result.Arguments,
		Data:        result.Data,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Triggered check lost, notification not persisted")
		return
	}

	logger.Info().
		Str("notificationId", n.ID).
		Str("description", n.Description).
		Msg("Tool triggered")
}

func (s *Scheduler) recordCheck(name string, result tool.CheckResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[name]
	if !ok {
		st = &Status{Tool: name}
		s.stats[name] = st
	}

	at := s.now()
	st.Checks++
	st.LastCheckAt = &at
	st.LastStatus = result.Status
	st.LastError = ""
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
	}
	if result.Trigger {
		st.Triggers++
	}
}

func (s *Scheduler) setNextCheck(name string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[name]
	if !ok {
		st = &Status{Tool: name}
		s.stats[name] = st
	}
	st.NextCheckAt = &at
}
