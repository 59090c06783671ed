package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/usashopbox/storefront/internal/pricing"
)

// CacheKey is the Redis key holding the cached configuration.
const CacheKey = "usashopbox:pricing_config:" + DefaultKey

// CacheRecorder counts cache lookups. Implemented by metrics.Recorder.
type CacheRecorder interface {
	SettingsCacheHit()
	SettingsCacheMiss()
}

// CachedStore serves Current from Redis and falls back to the wrapped store
// on a miss or any Redis error.
type CachedStore struct {
	next     Store
	client   redis.UniversalClient
	ttl      time.Duration
	logger   *zap.Logger
	recorder CacheRecorder
}

// CacheOption configures a CachedStore.
type CacheOption func(*CachedStore)

// WithRecorder reports hits and misses to r.
func WithRecorder(r CacheRecorder) CacheOption {
	return func(c *CachedStore) { c.recorder = r }
}

// NewCachedStore wraps next with a Redis read-through cache.
func NewCachedStore(next Store, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger, opts ...CacheOption) *CachedStore {
	c := &CachedStore{next: next, client: client, ttl: ttl, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedStore) Current(ctx context.Context) (pricing.Config, error) {
	raw, err := c.client.Get(ctx, CacheKey).Bytes()
	switch {
	case err == nil:
		var cfg pricing.Config
		jerr := json.Unmarshal(raw, &cfg)
		if jerr == nil {
			c.hit()
			return cfg, nil
		}
		c.logger.Warn("discarding unreadable cached pricing config", zap.Error(jerr))
		if err := c.client.Del(ctx, CacheKey).Err(); err != nil {
			c.logger.Warn("settings cache invalidation failed", zap.Error(err))
		}
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("settings cache read failed", zap.Error(err))
	}
	c.miss()

	cfg, err := c.next.Current(ctx)
	if err != nil {
		return pricing.Config{}, err
	}
	c.fill(ctx, cfg)
	return cfg, nil
}

// Update writes through to the wrapped store and refreshes the cache entry.
func (c *CachedStore) Update(ctx context.Context, patch pricing.Patch) (pricing.Config, error) {
	cfg, err := c.next.Update(ctx, patch)
	if err != nil {
		return pricing.Config{}, err
	}
	if err := c.client.Del(ctx, CacheKey).Err(); err != nil {
		c.logger.Warn("settings cache invalidation failed", zap.Error(err))
		return cfg, nil
	}
	c.store(ctx, cfg)
	return cfg, nil
}

// store overwrites the entry with a config that was just written.
func (c *CachedStore) store(ctx context.Context, cfg pricing.Config) {
	raw, ok := c.encode(cfg)
	if !ok {
		return
	}
	if err := c.client.Set(ctx, CacheKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("settings cache write failed", zap.Error(err))
	}
}

// fill caches a config read on a miss only while the key is absent, so a
// slow read never replaces the entry an Update wrote after it.
func (c *CachedStore) fill(ctx context.Context, cfg pricing.Config) {
	raw, ok := c.encode(cfg)
	if !ok {
		return
	}
	if err := c.client.SetNX(ctx, CacheKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("settings cache write failed", zap.Error(err))
	}
}

func (c *CachedStore) encode(cfg pricing.Config) ([]byte, bool) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		c.logger.Warn("encode pricing config for cache", zap.Error(err))
		return nil, false
	}
	return raw, true
}

func (c *CachedStore) hit() {
	if c.recorder != nil {
		c.recorder.SettingsCacheHit()
	}
}

func (c *CachedStore) miss() {
	if c.recorder != nil {
		c.recorder.SettingsCacheMiss()
	}
}

// Ping waits for Redis to answer, retrying with exponential backoff until
// maxWait elapses.
func Ping(ctx context.Context, client redis.UniversalClient, maxWait time.Duration, logger *zap.Logger) error {
	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.InitialInterval = 100 * time.Millisecond
	retryPolicy.MaxElapsedTime = maxWait

	err := backoff.RetryNotify(
		func() error {
			return client.Ping(ctx).Err()
		},
		backoff.WithContext(retryPolicy, ctx),
		func(err error, next time.Duration) {
			logger.Warn("redis not ready, retrying", zap.Error(err), zap.Duration("next_attempt_in", next))
		},
	)
	if err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
