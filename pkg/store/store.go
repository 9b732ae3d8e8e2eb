// Package store provides the durable backends for notifications,
// scheduled events and tool configuration.
//
// Three drivers are available:
//
//   - file: a single JSON document replaced atomically on every change
//   - sqlite: one row per record in a local SQLite database
//   - redis: hashes plus creation-ordered sorted sets on a Redis server
//
// All of them satisfy notification.Store and return only after the
// change is durable.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/harun/vigil/pkg/notification"
	"github.com/rs/zerolog"
)

// Driver names
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// ErrUnknownDriver is returned by Open for unsupported drivers
var ErrUnknownDriver = errors.New("unknown storage driver")

// ErrNotStored is returned when updating a record the store does not hold
var ErrNotStored = errors.New("record not stored")

// Options selects and configures a backend
type Options struct {
	Driver string
	// Path is the JSON file or SQLite database. Relative paths are
	// resolved against DataDir.
	Path    string
	DataDir string
	Redis   RedisOptions
	Logger  zerolog.Logger
}

// Open creates the backend named by opts.Driver
func Open(ctx context.Context, opts Options) (notification.Store, error) {
	logger := opts.Logger.With().Str("component", "store").Str("driver", opts.Driver).Logger()

	switch opts.Driver {
	case "", DriverFile:
		return NewFileStore(resolvePath(opts, "vigil.db.json"), logger)
	case DriverSQLite:
		return NewSQLiteStore(resolvePath(opts, "vigil.sqlite"), logger)
	case DriverRedis:
		return NewRedisStore(ctx, opts.Redis, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

func resolvePath(opts Options, fallback string) string {
	path := opts.Path
	if path == "" {
		path = fallback
	}
	if !filepath.IsAbs(path) && opts.DataDir != "" {
		path = filepath.Join(opts.DataDir, path)
	}
	return path
}

func emptySnapshot() *notification.Snapshot {
	return &notification.Snapshot{
		Notifications:   []notification.Notification{},
		ScheduledEvents: []notification.ScheduledEvent{},
		ToolConfigs:     map[string]map[string]any{},
	}
}
