package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const settingsCacheKey = "notify:settings"

// SettingsSource loads the global notification settings.
type SettingsSource interface {
	Load(ctx context.Context) (Settings, error)
}

// SettingsRepository reads and writes the stored settings row.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Load reads the stored settings, falling back to defaults when none exist.
func (r *SettingsRepository) Load(ctx context.Context) (Settings, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT config FROM notification_settings WHERE id=1`).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultSettings(), nil
		}
		return Settings{}, err
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("notify: decode settings: %w", err)
	}
	return s, nil
}

// Save upserts the settings row.
func (r *SettingsRepository) Save(ctx context.Context, s Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO notification_settings (id, config, updated_at) VALUES (1, $1, NOW())
ON CONFLICT (id) DO UPDATE SET config=EXCLUDED.config, updated_at=NOW()`, raw)
	return err
}

// SettingsCache fronts a SettingsSource with a short-lived Redis entry so
// every dispatch reads fresh-enough configuration without a database round
// trip. Invalidate drops the entry after a settings write.
type SettingsCache struct {
	source SettingsSource
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewSettingsCache constructs the cache.
func NewSettingsCache(source SettingsSource, client *redis.Client, ttl time.Duration) *SettingsCache {
	return &SettingsCache{source: source, client: client, ttl: ttl}
}

// Load returns cached settings, falling through to the source on miss.
// Concurrent misses collapse into one source read; a cache error degrades
// to the source rather than failing dispatch.
func (c *SettingsCache) Load(ctx context.Context) (Settings, error) {
	raw, err := c.client.Get(ctx, settingsCacheKey).Bytes()
	if err == nil {
		var s Settings
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
	}
	v, err, _ := c.group.Do(settingsCacheKey, func() (any, error) {
		s, err := c.source.Load(ctx)
		if err != nil {
			return Settings{}, err
		}
		if encoded, err := json.Marshal(s); err == nil {
			_ = c.client.Set(ctx, settingsCacheKey, encoded, c.ttl).Err()
		}
		return s, nil
	})
	if err != nil {
		return Settings{}, err
	}
	return v.(Settings), nil
}

// Invalidate drops the cached entry.
func (c *SettingsCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, settingsCacheKey).Err()
}
