package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/whisper/moderation/internal/entity"
	"github.com/whisper/moderation/internal/moderation"
)

type appConfigRow struct {
	AllowMatureContent     bool `redis:"allow_mature_content"`
	ContentReportThreshold int  `redis:"content_report_threshold"`
	UserReportThreshold    int  `redis:"user_report_threshold"`
}

// AppConfig reads per-app moderation policy.
type AppConfig struct {
	client *redis.Client
}

// NewAppConfig creates an app config store using the provided Redis client.
func NewAppConfig(client *redis.Client) *AppConfig {
	return &AppConfig{client: client}
}

// ReadValidationConfig returns the app's policy, or nil if none is stored.
func (s *AppConfig) ReadValidationConfig(ctx context.Context, appHandle string) (*entity.ValidationConfig, error) {
	res := s.client.HGetAll(ctx, AppConfigPrefix+appHandle)
	fields, err := res.Result()
	if err != nil {
		return nil, fmt.Errorf("store: read app config %s: %w", appHandle, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	var row appConfigRow
	if err := res.Scan(&row); err != nil {
		return nil, fmt.Errorf("store: scan app config %s: %w", appHandle, err)
	}
	return &entity.ValidationConfig{
		AllowMatureContent:     row.AllowMatureContent,
		ContentReportThreshold: row.ContentReportThreshold,
		UserReportThreshold:    row.UserReportThreshold,
	}, nil
}

// CachedAppConfig caches another AppConfigStore, including misses, for a
// fixed TTL. Policy changes take up to the TTL to be seen.
type CachedAppConfig struct {
	inner moderation.AppConfigStore
	cache *expirable.LRU[string, *entity.ValidationConfig]
}

// NewCachedAppConfig wraps inner with a cache of the given size and TTL.
func NewCachedAppConfig(inner moderation.AppConfigStore, size int, ttl time.Duration) *CachedAppConfig {
	return &CachedAppConfig{
		inner: inner,
		cache: expirable.NewLRU[string, *entity.ValidationConfig](size, nil, ttl),
	}
}

// ReadValidationConfig returns a copy of the cached policy, loading it on a
// miss. Errors are not cached.
func (c *CachedAppConfig) ReadValidationConfig(ctx context.Context, appHandle string) (*entity.ValidationConfig, error) {
	cfg, ok := c.cache.Get(appHandle)
	if !ok {
		var err error
		cfg, err = c.inner.ReadValidationConfig(ctx, appHandle)
		if err != nil {
			return nil, err
		}
		c.cache.Add(appHandle, cfg)
	}
	if cfg == nil {
		return nil, nil
	}
	cp := *cfg
	return &cp, nil
}
