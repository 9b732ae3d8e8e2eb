package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/harun/vigil/pkg/notification"
	"github.com/rs/zerolog"
)

// FileStore keeps everything in one JSON document:
//
//	{"notifications": [...], "scheduled_events": [...], "tool_configs": {...}}
//
// Every change rewrites the document through a synced temp file and an
// atomic rename, so a crash leaves either the old or the new version.
type FileStore struct {
	path   string
	logger zerolog.Logger

	mu  sync.Mutex
	doc *notification.Snapshot
}

// NewFileStore opens path, creating it on first write. A document that
// exists but cannot be parsed is an error rather than silently replaced.
func NewFileStore(path string, logger zerolog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	s := &FileStore{path: path, logger: logger, doc: emptySnapshot()}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		s.logger.Info().Str("path", path).Msg("No existing store file, starting empty")
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	var doc notification.Snapshot
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse store file %s: %w", path, err)
	}
	if doc.Notifications == nil {
		doc.Notifications = []notification.Notification{}
	}
	if doc.ScheduledEvents == nil {
		doc.ScheduledEvents = []notification.ScheduledEvent{}
	}
	if doc.ToolConfigs == nil {
		doc.ToolConfigs = map[string]map[string]any{}
	}
	s.doc = &doc

	s.logger.Info().
		Str("path", path).
		Int("notifications", len(doc.Notifications)).
		Int("scheduledEvents", len(doc.ScheduledEvents)).
		Msg("Store file loaded")

	return s, nil
}

// Path returns the document location
func (s *FileStore) Path() string { return s.path }

// Load implements notification.Store
func (s *FileStore) Load(ctx context.Context) (*notification.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.copyLocked()
	sort.SliceStable(snap.Notifications, func(i, j int) bool {
		return snap.Notifications[i].CreatedAt.Before(snap.Notifications[j].CreatedAt)
	})
	sort.SliceStable(snap.ScheduledEvents, func(i, j int) bool {
		return snap.ScheduledEvents[i].CreatedAt.Before(snap.ScheduledEvents[j].CreatedAt)
	})
	return snap, nil
}

// AppendNotification implements notification.Store
func (s *FileStore) AppendNotification(ctx context.Context, n notification.Notification) error {
	return s.mutate(ctx, func(doc *notification.Snapshot) error {
		doc.Notifications = append(doc.Notifications, n.Clone())
		return nil
	})
}

// UpdateNotification implements notification.Store
func (s *FileStore) UpdateNotification(ctx context.Context, n notification.Notification) error {
	return s.mutate(ctx, func(doc *notification.Snapshot) error {
		for i := range doc.Notifications {
			if doc.Notifications[i].ID == n.ID {
				doc.Notifications[i] = n.Clone()
				return nil
			}
		}
		return fmt.Errorf("%w: notification %s", ErrNotStored, n.ID)
	})
}

// AppendScheduledEvent implements notification.Store
func (s *FileStore) AppendScheduledEvent(ctx context.Context, e notification.ScheduledEvent) error {
	return s.mutate(ctx, func(doc *notification.Snapshot) error {
		doc.ScheduledEvents = append(doc.ScheduledEvents, e.Clone())
		return nil
	})
}

// RemoveScheduledEvent implements notification.Store
func (s *FileStore) RemoveScheduledEvent(ctx context.Context, id string) error {
	return s.mutate(ctx, func(doc *notification.Snapshot) error {
		kept := doc.ScheduledEvents[:0]
		for _, e := range doc.ScheduledEvents {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		doc.ScheduledEvents = kept
		return nil
	})
}

// SaveToolConfig implements notification.Store
func (s *FileStore) SaveToolConfig(ctx context.Context, name string, cfg map[string]any) error {
	return s.mutate(ctx, func(doc *notification.Snapshot) error {
		copied := make(map[string]any, len(cfg))
		for k, v := range cfg {
			copied[k] = v
		}
		doc.ToolConfigs[name] = copied
		return nil
	})
}

// Close implements notification.Store
func (s *FileStore) Close() error { return nil }

// mutate applies fn to a copy of the document and swaps it in only once
// the copy is on disk.
func (s *FileStore) mutate(ctx context.Context, fn func(doc *notification.Snapshot) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.copyLocked()
	if err := fn(next); err != nil {
		return err
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.doc = next
	return nil
}

func (s *FileStore) copyLocked() *notification.Snapshot {
	out := &notification.Snapshot{
		Notifications:   make([]notification.Notification, 0, len(s.doc.Notifications)),
		ScheduledEvents: make([]notification.ScheduledEvent, 0, len(s.doc.ScheduledEvents)),
		ToolConfigs:     make(map[string]map[string]any, len(s.doc.ToolConfigs)),
	}
	for _, n := range s.doc.Notifications {
		out.Notifications = append(out.Notifications, n.Clone())
	}
	for _, e := range s.doc.ScheduledEvents {
		out.ScheduledEvents = append(out.ScheduledEvents, e.Clone())
	}
	for name, cfg := range s.doc.ToolConfigs {
		copied := make(map[string]any, len(cfg))
		for k, v := range cfg {
			copied[k] = v
		}
		out.ToolConfigs[name] = copied
	}
	return out
}

// persist writes doc next to the target and renames it into place
func (s *FileStore) persist(doc *notification.Snapshot) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	s.logger.Debug().
		Int("notifications", len(doc.Notifications)).
		Int("scheduledEvents", len(doc.ScheduledEvents)).
		Msg("Persisted store file")

	return nil
}
