package tool

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Info is a point-in-time view of a registered tool
type Info struct {
	Name         string `json:"name"`
	Kind         Kind   `json:"type"`
	Description  string `json:"description"`
	ConfigSchema Schema `json:"config_schema"`
	Config       Config `json:"config"`
	Running      bool   `json:"running"`
}

// Registry holds the configured tools in registration order.
// The running flags belong to whoever claims them with ClaimRunning;
// everyone else only reads them.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Descriptor
	order   []string
	running map[string]bool
	claimed bool
}

// RunningSetter records whether an Active tool is being polled
type RunningSetter func(name string, running bool) error

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*Descriptor),
		order:   make([]string, 0),
		running: make(map[string]bool),
	}
}

// Register adds a tool. Names are unique.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("%w: nil descriptor", ErrConfiguration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[d.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name())
	}

	r.tools[d.Name()] = d
	r.order = append(r.order, d.Name())

	log.Info().
		Str("tool", d.Name()).
		Str("kind", string(d.Kind())).
		Msg("Tool registered")

	return nil
}

// Get returns the tool registered under name
func (r *Registry) Get(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return d, nil
}

// List returns all tools in registration order
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Infos returns a snapshot of every tool, secrets redacted
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.infoLocked(r.tools[name]))
	}
	return out
}

// Info returns a snapshot of a single tool
func (r *Registry) Info(name string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tools[name]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return r.infoLocked(d), nil
}

func (r *Registry) infoLocked(d *Descriptor) Info {
	meta := d.Metadata()
	return Info{
		Name:         d.Name(),
		Kind:         d.Kind(),
		Description:  meta.Description,
		ConfigSchema: meta.ConfigSchema,
		Config:       d.RedactedConfig(),
		Running:      r.running[d.Name()],
	}
}

// ClaimRunning hands out the only setter for the running flags. A
// registry can be claimed once.
func (r *Registry) ClaimRunning() (RunningSetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.claimed {
		return nil, ErrRunningClaimed
	}
	r.claimed = true
	return r.setRunning, nil
}

func (r *Registry) setRunning(name string, running bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if running {
		r.running[name] = true
	} else {
		delete(r.running, name)
	}
	return nil
}

// IsRunning reports whether the scheduler is polling name
func (r *Registry) IsRunning(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running[name]
}

// UpdateConfig revalidates and replaces a tool's configuration
func (r *Registry) UpdateConfig(name string, raw map[string]any) error {
	d, err := r.Get(name)
	if err != nil {
		return err
	}

	if err := d.UpdateConfig(raw); err != nil {
		return err
	}

	log.Info().Str("tool", name).Msg("Tool configuration updated")
	return nil
}
