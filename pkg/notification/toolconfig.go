package notification

import (
	"context"

	"github.com/harun/vigil/pkg/tool"
)

// UpdateToolConfig validates raw against the tool's schema, swaps it in
// and persists it. On store failure the previous configuration is
// restored and a *PersistenceError returned.
func (m *Manager) UpdateToolConfig(ctx context.Context, name string, raw map[string]any) (tool.Info, error) {
	d, err := m.registry.Get(name)
	if err != nil {
		return tool.Info{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := d.Config()
	if err := m.registry.UpdateConfig(name, raw); err != nil {
		return tool.Info{}, err
	}

	if err := m.store.SaveToolConfig(ctx, name, d.Config()); err != nil {
		if rbErr := d.UpdateConfig(prev); rbErr != nil {
			m.logger.Error().Err(rbErr).Str("tool", name).Msg("Failed to restore tool configuration")
		}
		return tool.Info{}, &PersistenceError{Op: "save tool config", Err: err}
	}

	return m.registry.Info(name)
}

// ApplyToolConfigs overlays persisted configurations onto the registry.
// Entries for unknown tools or that no longer validate are skipped.
func (m *Manager) ApplyToolConfigs(configs map[string]map[string]any) int {
	applied := 0
	for name, raw := range configs {
		if err := m.registry.UpdateConfig(name, raw); err != nil {
			m.logger.Warn().Err(err).Str("tool", name).Msg("Skipping persisted tool configuration")
			continue
		}
		applied++
	}
	return applied
}
