package config

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config represents the main Vigil configuration
type Config struct {
	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Scheduler
	Scheduler SchedulerConfig `json:"scheduler" mapstructure:"scheduler"`

	// Storage backend for notifications, scheduled events and tool configs
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// HTTP API
	API APIConfig `json:"api" mapstructure:"api"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Audit trail of human decisions
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// Price feed used by price monitors
	PriceFeed PriceFeedConfig `json:"price_feed" mapstructure:"price_feed"`

	// Shell hooks run on notification and daemon events
	Hooks HooksConfig `json:"hooks" mapstructure:"hooks"`

	// Signed inbound triggers mounted under /hooks
	Webhooks WebhooksConfig `json:"webhooks" mapstructure:"webhooks"`

	// Tools to register at startup
	Tools []ToolConfig `json:"tools" mapstructure:"tools"`

	// WatchConfig reloads tool options when the config file changes
	WatchConfig bool `json:"watch_config" mapstructure:"watch_config"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"` // debug, info, warn, error
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // megabytes, 0 disables rotation
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	CheckTimeoutSeconds   int  `json:"check_timeout_seconds" mapstructure:"check_timeout_seconds"`
	ExecuteTimeoutSeconds int  `json:"execute_timeout_seconds" mapstructure:"execute_timeout_seconds"`
	EventPollSeconds      int  `json:"event_poll_seconds" mapstructure:"event_poll_seconds"`
	AutoStart             bool `json:"auto_start" mapstructure:"auto_start"`
}

// CheckTimeout returns the per-check deadline
func (s SchedulerConfig) CheckTimeout() time.Duration {
	return time.Duration(s.CheckTimeoutSeconds) * time.Second
}

// ExecuteTimeout returns the reactive execution deadline
func (s SchedulerConfig) ExecuteTimeout() time.Duration {
	return time.Duration(s.ExecuteTimeoutSeconds) * time.Second
}

// EventPollInterval returns how often due scheduled events are fired
func (s SchedulerConfig) EventPollInterval() time.Duration {
	return time.Duration(s.EventPollSeconds) * time.Second
}

// StorageConfig selects the persistence driver
type StorageConfig struct {
	Driver string      `json:"driver" mapstructure:"driver"` // file, sqlite, redis
	Path   string      `json:"path" mapstructure:"path"`
	Redis  RedisConfig `json:"redis" mapstructure:"redis"`
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	URL      string `json:"url" mapstructure:"url"`
	Addr     string `json:"addr" mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
	Prefix   string `json:"prefix" mapstructure:"prefix"`
}

// APIConfig holds HTTP API configuration
type APIConfig struct {
	Enabled        bool     `json:"enabled" mapstructure:"enabled"`
	Host           string   `json:"host" mapstructure:"host"`
	Port           int      `json:"port" mapstructure:"port"`
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`
	SharedSecret   string   `json:"shared_secret" mapstructure:"shared_secret"`
}

// Addr returns host:port
func (a APIConfig) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled    bool    `json:"enabled" mapstructure:"enabled"`
	Endpoint   string  `json:"endpoint" mapstructure:"endpoint"`
	Insecure   bool    `json:"insecure" mapstructure:"insecure"`
	SampleRate float64 `json:"sample_rate" mapstructure:"sample_rate"`
}

// AuditConfig holds audit log configuration
type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	File    string `json:"file" mapstructure:"file"`
}

// PriceFeedConfig configures the offline price feed
type PriceFeedConfig struct {
	BasePrice  float64 `json:"base_price" mapstructure:"base_price"`
	Volatility float64 `json:"volatility" mapstructure:"volatility"`
}

// HooksConfig configures event hooks
type HooksConfig struct {
	Enabled bool         `json:"enabled" mapstructure:"enabled"`
	Items   []HookConfig `json:"items" mapstructure:"items"`
}

// HookConfig is one shell script bound to an event
type HookConfig struct {
	ID             string `json:"id" mapstructure:"id"`
	Event          string `json:"event" mapstructure:"event"`
	Script         string `json:"script" mapstructure:"script"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
}

// Timeout returns the script deadline, zero for the default
func (h HookConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// WebhooksConfig configures the inbound trigger endpoint
type WebhooksConfig struct {
	Enabled            bool            `json:"enabled" mapstructure:"enabled"`
	RateLimitPerMinute int             `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	Sources            []WebhookSource `json:"sources" mapstructure:"sources"`
}

// WebhookSource is one external system allowed to push triggers
type WebhookSource struct {
	Source          string `json:"source" mapstructure:"source"`
	Secret          string `json:"secret" mapstructure:"secret"`
	SignatureHeader string `json:"signature_header" mapstructure:"signature_header"`
	Algorithm       string `json:"algorithm" mapstructure:"algorithm"`
	Description     string `json:"description" mapstructure:"description"`
}

// ToolConfig declares one tool instance
type ToolConfig struct {
	Name    string         `json:"name" mapstructure:"name"`
	Type    string         `json:"type" mapstructure:"type"`
	Enabled bool           `json:"enabled" mapstructure:"enabled"`
	Options map[string]any `json:"options" mapstructure:"options"`
}

// InstanceName returns the registry name, defaulting to the type
func (t ToolConfig) InstanceName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Type
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
			MaxSize:   50,
			MaxAge:    14,
			Compress:  true,
		},
		Scheduler: SchedulerConfig{
			CheckTimeoutSeconds:   30,
			ExecuteTimeoutSeconds: 60,
			EventPollSeconds:      5,
			AutoStart:             true,
		},
		Storage: StorageConfig{
			Driver: "file",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "vigil:",
			},
		},
		API: APIConfig{
			Enabled:        true,
			Host:           "127.0.0.1",
			Port:           8787,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Tracing: TracingConfig{
			SampleRate: 1.0,
		},
		Audit: AuditConfig{
			Enabled: true,
		},
		PriceFeed: PriceFeedConfig{
			BasePrice:  45000,
			Volatility: 0.02,
		},
		Hooks: HooksConfig{
			Items: []HookConfig{},
		},
		Webhooks: WebhooksConfig{
			RateLimitPerMinute: 60,
			Sources:            []WebhookSource{},
		},
		Tools: []ToolConfig{},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "", "file", "sqlite", "redis":
	default:
		return fmt.Errorf("invalid storage driver %s (must be: file, sqlite, redis)", c.Storage.Driver)
	}
	if c.Storage.Driver == "redis" && c.Storage.Redis.URL == "" && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage.redis: url or addr is required for the redis driver")
	}

	if c.Scheduler.CheckTimeoutSeconds <= 0 {
		return fmt.Errorf("scheduler.check_timeout_seconds must be positive")
	}
	if c.Scheduler.EventPollSeconds <= 0 {
		return fmt.Errorf("scheduler.event_poll_seconds must be positive")
	}

	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port must be between 1 and 65535, got %d", c.API.Port)
	}

	seen := make(map[string]bool, len(c.Tools))
	for i, t := range c.Tools {
		if t.Type == "" {
			return fmt.Errorf("tool %d: type is required", i)
		}
		name := t.InstanceName()
		if seen[name] {
			return fmt.Errorf("tool %s: duplicate name", name)
		}
		seen[name] = true
	}

	return nil
}
