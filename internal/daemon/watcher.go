package daemon

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultReloadDelay = 250 * time.Millisecond

// ConfigWatcher calls onChange once the config file has been quiet for
// the stability delay. It watches the parent directory so editors that
// replace the file by rename are still seen.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	delay    time.Duration
	onChange func()
	logger   zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewConfigWatcher creates a watcher for path. delay <= 0 uses the default.
func NewConfigWatcher(path string, delay time.Duration, onChange func(), logger zerolog.Logger) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if delay <= 0 {
		delay = defaultReloadDelay
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &ConfigWatcher{
		watcher:  watcher,
		path:     filepath.Clean(abs),
		delay:    delay,
		onChange: onChange,
		logger:   logger.With().Str("subcomponent", "config_watcher").Logger(),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching
func (w *ConfigWatcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.path).Msg("Config watcher started")
	return nil
}

// Stop stops watching and cancels a pending reload
func (w *ConfigWatcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.logger.Info().Msg("Config watcher stopped")
	return nil
}

func (w *ConfigWatcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.debounce()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *ConfigWatcher) debounce() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.delay, func() {
		select {
		case <-w.done:
			return
		default:
		}

		w.logger.Debug().Str("path", w.path).Msg("Config file changed")
		w.onChange()
	})
}
