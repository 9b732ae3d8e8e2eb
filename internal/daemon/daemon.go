// Package daemon wires the tool registry, scheduler, notification manager
// and HTTP API into one long-running process.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/vigil/internal/config"
	"github.com/harun/vigil/internal/logger"
	"github.com/harun/vigil/internal/metrics"
	"github.com/harun/vigil/internal/observability"
	"github.com/harun/vigil/internal/tracing"
	"github.com/harun/vigil/pkg/api"
	"github.com/harun/vigil/pkg/hooks"
	"github.com/harun/vigil/pkg/notification"
	"github.com/harun/vigil/pkg/scheduler"
	"github.com/harun/vigil/pkg/store"
	"github.com/harun/vigil/pkg/tool"
	"github.com/harun/vigil/pkg/tool/builtin"
	"github.com/harun/vigil/pkg/webhook"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// Daemon represents the Vigil daemon service
type Daemon struct {
	config     *config.Config
	configPath string
	logger     *logger.Logger
	log        zerolog.Logger
	deps       builtin.Deps

	// Core modules
	metrics   *metrics.Metrics
	store     notification.Store
	registry  *tool.Registry
	manager   *notification.Manager
	scheduler *scheduler.Scheduler
	audit     *observability.AuditLogger
	hooks     *hooks.Manager

	// Services
	apiServer *api.Server
	webhooks  *webhook.Handler
	watcher   *ConfigWatcher

	// Internal
	eventLoop   *EventLoop
	lifecycle   *LifecycleManager
	reloadMu    sync.Mutex
	fileOptions map[string]map[string]any

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Option customizes a Daemon
type Option func(*Daemon)

// WithConfigPath records the file the configuration was loaded from,
// used for live reload.
func WithConfigPath(path string) Option {
	return func(d *Daemon) { d.configPath = path }
}

// WithPriceSource replaces the configured price feed
func WithPriceSource(p builtin.PriceSource) Option {
	return func(d *Daemon) { d.deps.Prices = p }
}

// WithLoginSource replaces the default login source of social checkers
func WithLoginSource(l builtin.LoginSource) Option {
	return func(d *Daemon) { d.deps.Logins = l }
}

// New creates a new daemon instance and restores persisted state
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config: cfg,
		logger: log,
		log:    log.Component("daemon"),
		ctx:    ctx,
		cancel: cancel,

		fileOptions: make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.deps.Prices == nil {
		d.deps.Prices = builtin.NewRandomWalkFeed(cfg.PriceFeed.BasePrice, cfg.PriceFeed.Volatility)
	}

	if cfg.Tracing.Enabled {
		err := tracing.InitOpenTelemetry(tracing.Options{
			ServiceName: "vigil",
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			d.log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			d.log.Info().Str("endpoint", cfg.Tracing.Endpoint).Msg("Tracing initialized successfully")
		}
	}

	if err := d.initializeCoreModules(); err != nil {
		cancel()
		d.closeResources()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		cancel()
		d.closeResources()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.eventLoop = NewEventLoop(d)
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCoreModules builds storage, tools, manager and scheduler in
// dependency order
func (d *Daemon) initializeCoreModules() error {
	zl := d.logger.Zerolog()

	if err := os.MkdirAll(d.config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	d.metrics = metrics.NewMetrics()

	st, err := store.Open(d.ctx, store.Options{
		Driver:  d.config.Storage.Driver,
		Path:    d.config.Storage.Path,
		DataDir: d.config.DataDir,
		Redis: store.RedisOptions{
			URL:      d.config.Storage.Redis.URL,
			Addr:     d.config.Storage.Redis.Addr,
			Password: d.config.Storage.Redis.Password,
			DB:       d.config.Storage.Redis.DB,
			Prefix:   d.config.Storage.Redis.Prefix,
		},
		Logger: zl,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	d.store = st

	d.registry = tool.NewRegistry()
	if err := d.registerTools(); err != nil {
		return err
	}

	mgr, err := notification.NewManager(notification.Config{
		Store:          d.store,
		Registry:       d.registry,
		Metrics:        d.metrics,
		Logger:         zl,
		ExecuteTimeout: d.config.Scheduler.ExecuteTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create notification manager: %w", err)
	}
	d.manager = mgr

	toolConfigs, err := mgr.Load(d.ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	applied := mgr.ApplyToolConfigs(toolConfigs)

	d.log.Info().
		Int("notifications", len(mgr.ListNotifications())).
		Int("scheduledEvents", len(mgr.ListScheduledEvents())).
		Int("toolConfigs", applied).
		Msg("State restored")

	sched, err := scheduler.New(scheduler.Config{
		Registry:     d.registry,
		Notifier:     mgr,
		CheckTimeout: d.config.Scheduler.CheckTimeout(),
		Metrics:      d.metrics,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	d.scheduler = sched

	if d.config.Audit.Enabled && d.config.Audit.File != "" {
		audit, err := observability.OpenAuditLogger(d.config.Audit.File)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		d.audit = audit
		mgr.Subscribe(audit.Handle)
	}

	hookMgr, err := hooks.NewManager(hooksConfig(d.config.Hooks, d.metrics, zl))
	if err != nil {
		return fmt.Errorf("failed to create hook manager: %w", err)
	}
	d.hooks = hookMgr
	if hookMgr.Count() > 0 {
		mgr.Subscribe(hookMgr.Handle)
		d.log.Info().Int("hooks", hookMgr.Count()).Msg("Event hooks registered")
	}

	return nil
}

func hooksConfig(cfg config.HooksConfig, m *metrics.Metrics, zl zerolog.Logger) hooks.Config {
	out := hooks.Config{
		Enabled: cfg.Enabled,
		Hooks:   make([]hooks.Hook, 0, len(cfg.Items)),
		Metrics: m,
		Logger:  zl,
	}
	for _, item := range cfg.Items {
		out.Hooks = append(out.Hooks, hooks.Hook{
			ID:      item.ID,
			Event:   item.Event,
			Script:  item.Script,
			Timeout: item.Timeout(),
			Enabled: item.Enabled,
		})
	}
	return out
}

func webhookConfig(cfg config.WebhooksConfig) []webhook.Hook {
	out := make([]webhook.Hook, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		out = append(out, webhook.Hook{
			Source:             src.Source,
			Secret:             src.Secret,
			SignatureHeader:    src.SignatureHeader,
			SignatureAlgorithm: src.Algorithm,
			Description:        src.Description,
		})
	}
	return out
}

// initializeServices builds the outward-facing services
func (d *Daemon) initializeServices() error {
	if d.config.Webhooks.Enabled {
		if !d.config.API.Enabled {
			d.log.Warn().Msg("Webhooks are enabled but the API is disabled, inbound triggers will not be served")
		} else {
			h, err := webhook.NewHandler(webhook.Config{
				Hooks:              webhookConfig(d.config.Webhooks),
				RateLimitPerMinute: d.config.Webhooks.RateLimitPerMinute,
				Notifier:           d.manager,
				Metrics:            d.metrics,
				Logger:             d.logger.Zerolog(),
			})
			if err != nil {
				return fmt.Errorf("failed to create webhook handler: %w", err)
			}
			d.webhooks = h
			d.log.Info().Strs("sources", h.Sources()).Msg("Webhook sources registered")
		}
	}

	if d.config.API.Enabled {
		apiCfg := api.Config{
			Addr:           d.config.API.Addr(),
			AllowedOrigins: d.config.API.AllowedOrigins,
			SharedSecret:   d.config.API.SharedSecret,
			Registry:       d.registry,
			Scheduler:      d.scheduler,
			Manager:        d.manager,
			Metrics:        d.metrics,
			Logger:         d.logger.Zerolog(),
		}
		if d.webhooks != nil {
			apiCfg.Webhooks = d.webhooks
		}
		srv, err := api.NewServer(apiCfg)
		if err != nil {
			return fmt.Errorf("failed to create API server: %w", err)
		}
		d.apiServer = srv
	}

	if d.config.WatchConfig && d.configPath != "" {
		w, err := NewConfigWatcher(d.configPath, 0, func() {
			if _, err := d.ReloadTools(); err != nil {
				d.log.Warn().Err(err).Msg("Config reload failed")
			}
		}, d.log)
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		d.watcher = w
	}

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.log.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Starting Vigil daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.apiServer != nil {
		if err := d.apiServer.Start(); err != nil {
			_ = d.lifecycle.Stop()
			d.setStopped()
			return fmt.Errorf("failed to start API server: %w", err)
		}
		logger.Info().Str("addr", d.apiServer.Addr()).Msg("API server started")
	}

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start config watcher")
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	started := d.autoStartTools()

	if err := d.hooks.Trigger(d.ctx, hooks.EventDaemonStartup, map[string]any{
		"tools":   len(d.registry.List()),
		"started": started,
	}); err != nil {
		logger.Warn().Err(err).Msg("Startup hook failed")
	}

	logger.Info().
		Int("tools", len(d.registry.List())).
		Int("started", started).
		Msg("Daemon started successfully")

	return nil
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.log.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Stopping Vigil daemon")

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop config watcher")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := d.hooks.Trigger(ctx, hooks.EventDaemonShutdown, nil); err != nil {
		logger.Warn().Err(err).Msg("Shutdown hook failed")
	}

	d.cancel()

	if err := d.scheduler.StopAll(ctx); err != nil {
		logger.Warn().Err(err).Msg("Some tool checks were still running at shutdown")
	}

	if d.apiServer != nil {
		if err := d.apiServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop API server")
		}
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-ctx.Done():
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.closeResources()

	logger.Info().Msg("Daemon stopped successfully")
	return nil
}

// closeResources releases everything New acquired. Safe on a partially
// built daemon.
func (d *Daemon) closeResources() {
	if d.webhooks != nil {
		d.webhooks.Close()
		d.webhooks = nil
	}

	if d.hooks != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.hooks.Close(ctx); err != nil {
			d.log.Warn().Err(err).Msg("Timed out waiting for event hooks")
		}
		cancel()
		d.hooks = nil
	}

	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.log.Error().Err(err).Msg("Failed to close store")
		}
		d.store = nil
	}

	if d.audit != nil {
		if err := d.audit.Close(); err != nil {
			d.log.Error().Err(err).Msg("Failed to close audit logger")
		}
		d.audit = nil
	}

	if d.tracingEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			d.log.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}
}

// Status represents daemon status
type Status struct {
	Running      bool          `json:"running"`
	Uptime       time.Duration `json:"uptime"`
	StartTime    time.Time     `json:"start_time"`
	Tools        int           `json:"tools"`
	RunningTools int           `json:"running_tools"`
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
		Tools:   len(d.registry.List()),
	}
	for _, s := range d.scheduler.Statuses() {
		if s.Running {
			status.RunningTools++
		}
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM and then stops the daemon.
// SIGHUP reloads tool options from the config file.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			d.log.Info().Msg("Received SIGHUP, reloading tool configuration")
			if _, err := d.ReloadTools(); err != nil {
				d.log.Warn().Err(err).Msg("Config reload failed")
			}
			continue
		}

		d.log.Info().Str("signal", sig.String()).Msg("Received signal")
		if err := d.Stop(); err != nil {
			d.log.Error().Err(err).Msg("Failed to stop daemon")
		}
		return
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetRegistry returns the tool registry
func (d *Daemon) GetRegistry() *tool.Registry {
	return d.registry
}

// GetScheduler returns the scheduler
func (d *Daemon) GetScheduler() *scheduler.Scheduler {
	return d.scheduler
}

// GetManager returns the notification manager
func (d *Daemon) GetManager() *notification.Manager {
	return d.manager
}

// GetAPIServer returns the API server, nil when disabled
func (d *Daemon) GetAPIServer() *api.Server {
	return d.apiServer
}
