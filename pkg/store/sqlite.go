package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/vigil/pkg/notification"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// SQLiteStore keeps one row per record; payload columns hold the JSON
// encoding and the remaining columns exist for ordering and lookup.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database at path
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", path).Msg("SQLite store opened")
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS notifications (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			state TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);

		CREATE TABLE IF NOT EXISTS scheduled_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			time_of_occur INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			payload TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_created ON scheduled_events(created_at);

		CREATE TABLE IF NOT EXISTS tool_configs (
			name TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load implements notification.Store
func (s *SQLiteStore) Load(ctx context.Context) (*notification.Snapshot, error) {
	snap := emptySnapshot()

	if err := s.scan(ctx, "SELECT payload FROM notifications ORDER BY created_at, seq", func(payload []byte) error {
		var n notification.Notification
		if err := json.Unmarshal(payload, &n); err != nil {
			return err
		}
		snap.Notifications = append(snap.Notifications, n)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}

	if err := s.scan(ctx, "SELECT payload FROM scheduled_events ORDER BY created_at, seq", func(payload []byte) error {
		var e notification.ScheduledEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return err
		}
		snap.ScheduledEvents = append(snap.ScheduledEvents, e)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load scheduled events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT name, payload FROM tool_configs")
	if err != nil {
		return nil, fmt.Errorf("failed to load tool configs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan tool config: %w", err)
		}
		var cfg map[string]any
		if err := json.Unmarshal(payload, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse tool config %s: %w", name, err)
		}
		snap.ToolConfigs[name] = cfg
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *SQLiteStore) scan(ctx context.Context, query string, fn func(payload []byte) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return err
		}
		if err := fn(payload); err != nil {
			return err
		}
	}
	return rows.Err()
}

// AppendNotification implements notification.Store
func (s *SQLiteStore) AppendNotification(ctx context.Context, n notification.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO notifications (id, state, created_at, payload) VALUES (?, ?, ?, ?)",
		n.ID, string(n.State), n.CreatedAt.UnixNano(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// UpdateNotification implements notification.Store
func (s *SQLiteStore) UpdateNotification(ctx context.Context, n notification.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET state = ?, payload = ? WHERE id = ?",
		string(n.State), string(payload), n.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: notification %s", ErrNotStored, n.ID)
	}
	return nil
}

// AppendScheduledEvent implements notification.Store
func (s *SQLiteStore) AppendScheduledEvent(ctx context.Context, e notification.ScheduledEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal scheduled event: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO scheduled_events (id, time_of_occur, created_at, payload) VALUES (?, ?, ?, ?)",
		e.ID, e.TimeOfOccur.UnixNano(), e.CreatedAt.UnixNano(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert scheduled event: %w", err)
	}
	return nil
}

// RemoveScheduledEvent implements notification.Store
func (s *SQLiteStore) RemoveScheduledEvent(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM scheduled_events WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete scheduled event: %w", err)
	}
	return nil
}

// SaveToolConfig implements notification.Store
func (s *SQLiteStore) SaveToolConfig(ctx context.Context, name string, cfg map[string]any) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal tool config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tool_configs (name, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		name, string(payload), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save tool config: %w", err)
	}
	return nil
}

// Close implements notification.Store
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
