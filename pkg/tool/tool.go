package tool

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Kind is the tool variant, fixed at construction
type Kind string

const (
	KindActive   Kind = "active"
	KindReactive Kind = "reactive"
)

// Check statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Execute statuses
const (
	StatusSuccess = "success"
)

// Metadata describes a tool for registry introspection
type Metadata struct {
	Name         string `json:"name"`
	Kind         Kind   `json:"type"`
	Description  string `json:"description"`
	ConfigSchema Schema `json:"config_schema"`
}

// CheckResult is produced by an Active tool's Check
type CheckResult struct {
	Status  string         `json:"status"`
	Data    map[string]any `json:"data,omitempty"`
	Trigger bool           `json:"trigger"`

	// Optional hints used when the result becomes a notification
	Description string `json:"description,omitempty"`
	ToolToCall  string `json:"which_tool_to_call,omitempty"`
	Arguments   []any  `json:"arguments,omitempty"`
}

// FailedCheck returns the non-triggering result used for any failed check
func FailedCheck(err error) CheckResult {
	data := map[string]any{}
	if err != nil {
		data["error"] = err.Error()
	}
	return CheckResult{Status: StatusError, Data: data, Trigger: false}
}

// ExecuteResult is produced by a Reactive tool's Execute
type ExecuteResult struct {
	Status  string         `json:"status"`
	Result  map[string]any `json:"result,omitempty"`
	Message string         `json:"message,omitempty"`
}

// ExecuteError builds an error-status result
func ExecuteError(format string, args ...any) ExecuteResult {
	return ExecuteResult{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// Tool is the capability every tool exposes
type Tool interface {
	Metadata() Metadata
}

// Active tools are polled periodically by the scheduler
type Active interface {
	Tool
	Check(ctx context.Context, cfg Config) (CheckResult, error)
	DefaultInterval() time.Duration
}

// ConfigValidator is implemented by tools whose options constrain each
// other. It runs after the schema has resolved defaults.
type ConfigValidator interface {
	ValidateConfig(cfg Config) error
}

// Reactive tools are invoked on demand. Unknown actions and malformed
// arguments must come back as an error-status result.
type Reactive interface {
	Tool
	Execute(ctx context.Context, cfg Config, args ...any) ExecuteResult
}

// Descriptor is a registered tool together with its resolved configuration.
// Exactly one of active/reactive is set.
type Descriptor struct {
	name      string
	kind      Kind
	meta      Metadata
	active    Active
	reactive  Reactive
	validator ConfigValidator

	mu     sync.RWMutex
	config Config
}

// New validates t against its declared kind and resolves raw against the
// tool's config schema.
func New(t Tool, raw map[string]any) (*Descriptor, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil tool", ErrConfiguration)
	}

	meta := t.Metadata()
	if meta.Name == "" {
		return nil, fmt.Errorf("%w: tool name cannot be empty", ErrConfiguration)
	}

	d := &Descriptor{
		name: meta.Name,
		kind: meta.Kind,
		meta: meta,
	}

	switch meta.Kind {
	case KindActive:
		a, ok := t.(Active)
		if !ok {
			return nil, fmt.Errorf("%w: %s declares %s but does not implement Check", ErrKindMismatch, meta.Name, meta.Kind)
		}
		d.active = a
	case KindReactive:
		r, ok := t.(Reactive)
		if !ok {
			return nil, fmt.Errorf("%w: %s declares %s but does not implement Execute", ErrKindMismatch, meta.Name, meta.Kind)
		}
		d.reactive = r
	default:
		return nil, fmt.Errorf("%w: %s has unknown kind %q", ErrKindMismatch, meta.Name, meta.Kind)
	}

	d.validator, _ = t.(ConfigValidator)

	cfg, err := d.resolve(raw)
	if err != nil {
		return nil, err
	}
	d.config = cfg

	return d, nil
}

func (d *Descriptor) resolve(raw map[string]any) (Config, error) {
	cfg, err := d.meta.ConfigSchema.Resolve(d.name, raw)
	if err != nil {
		return nil, err
	}
	if d.validator != nil {
		if err := d.validator.ValidateConfig(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Name returns the registry key
func (d *Descriptor) Name() string { return d.name }

// Kind returns the tool variant
func (d *Descriptor) Kind() Kind { return d.kind }

// Metadata returns the tool metadata captured at construction
func (d *Descriptor) Metadata() Metadata { return d.meta }

// Active returns the Active variant, if this is one
func (d *Descriptor) Active() (Active, bool) {
	return d.active, d.active != nil
}

// Reactive returns the Reactive variant, if this is one
func (d *Descriptor) Reactive() (Reactive, bool) {
	return d.reactive, d.reactive != nil
}

// Config returns a copy of the resolved configuration
func (d *Descriptor) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.Clone()
}

// RedactedConfig returns the resolved configuration with secret fields masked
func (d *Descriptor) RedactedConfig() Config {
	cfg := d.Config()
	for name, field := range d.meta.ConfigSchema {
		if field.Secret {
			if _, ok := cfg[name]; ok {
				cfg[name] = "[REDACTED]"
			}
		}
	}
	return cfg
}

// UpdateConfig validates raw and swaps it in. On error the previous
// configuration stays in effect.
func (d *Descriptor) UpdateConfig(raw map[string]any) error {
	cfg, err := d.resolve(raw)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.config = cfg
	d.mu.Unlock()

	return nil
}
