package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harun/vigil/pkg/notification"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisOptions configures the redis driver. URL, when set, takes
// precedence over the individual fields.
type RedisOptions struct {
	URL      string
	Addr     string
	Password string
	DB       int
	Prefix   string
}

const defaultRedisPrefix = "vigil:"

// RedisStore keeps each collection in a hash keyed by id plus a sorted
// set scored by creation time that fixes the order.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisStore connects and pings the server
func NewRedisStore(ctx context.Context, opts RedisOptions, logger zerolog.Logger) (*RedisStore, error) {
	var clientOpts *redis.Options
	if opts.URL != "" {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		clientOpts = parsed
	} else {
		if opts.Addr == "" {
			return nil, fmt.Errorf("redis address is required")
		}
		clientOpts = &redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}
	}

	rdb := redis.NewClient(clientOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	logger.Info().Str("addr", clientOpts.Addr).Str("prefix", prefix).Msg("Redis store connected")
	return &RedisStore{rdb: rdb, prefix: prefix, logger: logger}, nil
}

func (s *RedisStore) key(name string) string { return s.prefix + name }

// Load implements notification.Store
func (s *RedisStore) Load(ctx context.Context) (*notification.Snapshot, error) {
	snap := emptySnapshot()

	if err := s.loadOrdered(ctx, "notifications", func(payload string) error {
		var n notification.Notification
		if err := json.Unmarshal([]byte(payload), &n); err != nil {
			return err
		}
		snap.Notifications = append(snap.Notifications, n)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}

	if err := s.loadOrdered(ctx, "events", func(payload string) error {
		var e notification.ScheduledEvent
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return err
		}
		snap.ScheduledEvents = append(snap.ScheduledEvents, e)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load scheduled events: %w", err)
	}

	configs, err := s.rdb.HGetAll(ctx, s.key("tool_configs")).Result()
	if err != nil {
		return nil, fmt.Errorf("load tool configs: %w", err)
	}
	for name, payload := range configs {
		var cfg map[string]any
		if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
			return nil, fmt.Errorf("parse tool config %s: %w", name, err)
		}
		snap.ToolConfigs[name] = cfg
	}

	return snap, nil
}

func (s *RedisStore) loadOrdered(ctx context.Context, collection string, fn func(payload string) error) error {
	ids, err := s.rdb.ZRange(ctx, s.key(collection+":order"), 0, -1).Result()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	values, err := s.rdb.HMGet(ctx, s.key(collection), ids...).Result()
	if err != nil {
		return err
	}
	for i, v := range values {
		payload, ok := v.(string)
		if !ok {
			s.logger.Warn().Str("collection", collection).Str("id", ids[i]).Msg("Ordered id without payload, skipping")
			continue
		}
		if err := fn(payload); err != nil {
			return err
		}
	}
	return nil
}

// AppendNotification implements notification.Store
func (s *RedisStore) AppendNotification(ctx context.Context, n notification.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key("notifications"), n.ID, string(payload))
		pipe.ZAdd(ctx, s.key("notifications:order"), redis.Z{Score: float64(n.CreatedAt.UnixNano()), Member: n.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

// UpdateNotification implements notification.Store
func (s *RedisStore) UpdateNotification(ctx context.Context, n notification.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	exists, err := s.rdb.HExists(ctx, s.key("notifications"), n.ID).Result()
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: notification %s", ErrNotStored, n.ID)
	}

	if err := s.rdb.HSet(ctx, s.key("notifications"), n.ID, string(payload)).Err(); err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	return nil
}

// AppendScheduledEvent implements notification.Store
func (s *RedisStore) AppendScheduledEvent(ctx context.Context, e notification.ScheduledEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal scheduled event: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key("events"), e.ID, string(payload))
		pipe.ZAdd(ctx, s.key("events:order"), redis.Z{Score: float64(e.CreatedAt.UnixNano()), Member: e.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("append scheduled event: %w", err)
	}
	return nil
}

// RemoveScheduledEvent implements notification.Store
func (s *RedisStore) RemoveScheduledEvent(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.key("events"), id)
		pipe.ZRem(ctx, s.key("events:order"), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove scheduled event: %w", err)
	}
	return nil
}

// SaveToolConfig implements notification.Store
func (s *RedisStore) SaveToolConfig(ctx context.Context, name string, cfg map[string]any) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal tool config: %w", err)
	}
	if err := s.rdb.HSet(ctx, s.key("tool_configs"), name, string(payload)).Err(); err != nil {
		return fmt.Errorf("save tool config: %w", err)
	}
	return nil
}

// Close implements notification.Store
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
