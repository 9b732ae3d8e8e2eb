package daemon

import (
	"fmt"
	"reflect"

	"github.com/harun/vigil/internal/config"
	"github.com/harun/vigil/pkg/tool"
	"github.com/harun/vigil/pkg/tool/builtin"
)

// registerTools builds every configured tool. A misconfigured tool fails
// startup rather than silently going missing.
func (d *Daemon) registerTools() error {
	for _, tc := range d.config.Tools {
		name := tc.InstanceName()

		t, err := builtin.New(tc.Type, name, d.deps)
		if err != nil {
			return fmt.Errorf("tool %s: %w", name, err)
		}

		desc, err := tool.New(t, tc.Options)
		if err != nil {
			return fmt.Errorf("tool %s: %w", name, err)
		}

		if err := d.registry.Register(desc); err != nil {
			return fmt.Errorf("tool %s: %w", name, err)
		}
		d.fileOptions[name] = tc.Options
	}
	return nil
}

// autoStartTools starts the loops of enabled active tools
func (d *Daemon) autoStartTools() int {
	if !d.config.Scheduler.AutoStart {
		return 0
	}

	started := 0
	for _, tc := range d.config.Tools {
		if !tc.Enabled {
			continue
		}
		name := tc.InstanceName()

		desc, err := d.registry.Get(name)
		if err != nil || desc.Kind() != tool.KindActive {
			continue
		}

		if err := d.scheduler.Start(name); err != nil {
			d.log.Warn().Err(err).Str("tool", name).Msg("Failed to start tool")
			continue
		}
		started++
	}
	return started
}

// ReloadTools re-reads the config file and applies options that changed
// in the file since they were last read. Options changed through the API
// are left alone unless the file entry for that tool changed too. Tools
// added to or removed from the file need a restart. Returns the number
// of tools updated.
func (d *Daemon) ReloadTools() (int, error) {
	if d.configPath == "" {
		return 0, fmt.Errorf("no config file to reload")
	}

	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()

	cfg, err := config.Load(d.configPath)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, tc := range cfg.Tools {
		name := tc.InstanceName()

		desc, err := d.registry.Get(name)
		if err != nil {
			d.log.Warn().Str("tool", name).Msg("New tool in config, restart to register it")
			continue
		}

		if reflect.DeepEqual(d.fileOptions[name], tc.Options) {
			continue
		}

		if err := d.registry.UpdateConfig(desc.Name(), tc.Options); err != nil {
			d.log.Warn().Err(err).Str("tool", name).Msg("Rejected reloaded tool configuration")
			continue
		}
		d.fileOptions[name] = tc.Options
		updated++
	}

	d.log.Info().Int("updated", updated).Msg("Tool configuration reloaded")
	return updated, nil
}
