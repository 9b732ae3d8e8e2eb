package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/harun/vigil/pkg/hooks"
	"github.com/harun/vigil/pkg/tool/builtin"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateStorageDriver validates the storage driver name
func (v *Validator) ValidateStorageDriver(driver string) error {
	if driver == "" {
		return nil // Use default
	}

	validDrivers := []string{"file", "sqlite", "redis"}
	for _, valid := range validDrivers {
		if driver == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid storage driver: %s (must be one of: %s)", driver, strings.Join(validDrivers, ", "))
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateOrigin validates a CORS origin
func (v *Validator) ValidateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid allowed origin: %s (expected scheme://host[:port] or *)", origin)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("invalid allowed origin: %s (must not contain a path)", origin)
	}
	return nil
}

// ValidateToolType validates a tool type against the built-in set
func (v *Validator) ValidateToolType(typeName string) error {
	types := builtin.Types()
	for _, valid := range types {
		if typeName == valid {
			return nil
		}
	}
	return fmt.Errorf("unknown tool type: %s (must be one of: %s)", typeName, strings.Join(types, ", "))
}

// ValidateHookEvent validates a hook event name
func (v *Validator) ValidateHookEvent(event string) error {
	events := hooks.Events()
	for _, valid := range events {
		if event == valid {
			return nil
		}
	}
	return fmt.Errorf("unknown hook event: %s (must be one of: %s)", event, strings.Join(events, ", "))
}

// ValidateSignatureAlgorithm validates a webhook HMAC algorithm
func (v *Validator) ValidateSignatureAlgorithm(algorithm string) error {
	switch algorithm {
	case "", "sha256", "sha1":
		return nil
	}
	return fmt.Errorf("invalid signature algorithm: %s (must be one of: sha256, sha1)", algorithm)
}

// ValidateSampleRate validates a tracing sample rate
func (v *Validator) ValidateSampleRate(rate float64) error {
	if rate < 0 || rate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1, got %f", rate)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSize < 0 {
		errors = append(errors, fmt.Errorf("logging.max_size must be >= 0"))
	}
	if cfg.Logging.MaxAge < 0 {
		errors = append(errors, fmt.Errorf("logging.max_age must be >= 0"))
	}

	if err := v.ValidateStorageDriver(cfg.Storage.Driver); err != nil {
		errors = append(errors, err)
	}
	if cfg.Storage.Driver == "redis" && cfg.Storage.Redis.URL == "" && cfg.Storage.Redis.Addr == "" {
		errors = append(errors, fmt.Errorf("storage.redis: url or addr is required for the redis driver"))
	}

	if cfg.Scheduler.CheckTimeoutSeconds <= 0 {
		errors = append(errors, fmt.Errorf("scheduler.check_timeout_seconds must be positive"))
	}
	if cfg.Scheduler.ExecuteTimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("scheduler.execute_timeout_seconds must be >= 0"))
	}
	if cfg.Scheduler.EventPollSeconds <= 0 {
		errors = append(errors, fmt.Errorf("scheduler.event_poll_seconds must be positive"))
	}

	if cfg.API.Enabled {
		if err := v.ValidatePort(cfg.API.Port); err != nil {
			errors = append(errors, fmt.Errorf("api: %w", err))
		}
		for _, origin := range cfg.API.AllowedOrigins {
			if err := v.ValidateOrigin(origin); err != nil {
				errors = append(errors, err)
			}
		}
	}

	if cfg.Tracing.Enabled {
		if err := v.ValidateSampleRate(cfg.Tracing.SampleRate); err != nil {
			errors = append(errors, fmt.Errorf("tracing: %w", err))
		}
	}

	if cfg.PriceFeed.BasePrice < 0 {
		errors = append(errors, fmt.Errorf("price_feed.base_price must be >= 0"))
	}
	if cfg.PriceFeed.Volatility < 0 || cfg.PriceFeed.Volatility >= 1 {
		errors = append(errors, fmt.Errorf("price_feed.volatility must be in [0, 1)"))
	}

	if cfg.Hooks.Enabled {
		for i, h := range cfg.Hooks.Items {
			if !h.Enabled {
				continue
			}
			if err := v.ValidateHookEvent(h.Event); err != nil {
				errors = append(errors, fmt.Errorf("hook %d (%s): %w", i, h.ID, err))
			}
			if strings.TrimSpace(h.Script) == "" {
				errors = append(errors, fmt.Errorf("hook %d (%s): script is required", i, h.ID))
			}
			if h.TimeoutSeconds < 0 {
				errors = append(errors, fmt.Errorf("hook %d (%s): timeout_seconds must be >= 0", i, h.ID))
			}
		}
	}

	if cfg.Webhooks.Enabled {
		if cfg.Webhooks.RateLimitPerMinute < 0 {
			errors = append(errors, fmt.Errorf("webhooks.rate_limit_per_minute must be >= 0"))
		}
		sources := make(map[string]bool, len(cfg.Webhooks.Sources))
		for i, s := range cfg.Webhooks.Sources {
			if strings.TrimSpace(s.Source) == "" {
				errors = append(errors, fmt.Errorf("webhook %d: source is required", i))
				continue
			}
			if sources[s.Source] {
				errors = append(errors, fmt.Errorf("webhook %d (%s): duplicate source", i, s.Source))
			}
			sources[s.Source] = true
			if err := v.ValidateSignatureAlgorithm(s.Algorithm); err != nil {
				errors = append(errors, fmt.Errorf("webhook %d (%s): %w", i, s.Source, err))
			}
		}
	}

	seen := make(map[string]bool, len(cfg.Tools))
	for i, t := range cfg.Tools {
		if err := v.ValidateToolType(t.Type); err != nil {
			errors = append(errors, fmt.Errorf("tool %d (%s): %w", i, t.Name, err))
		}
		name := t.InstanceName()
		if name != "" && seen[name] {
			errors = append(errors, fmt.Errorf("tool %d (%s): duplicate name", i, name))
		}
		seen[name] = true
	}

	return errors
}
