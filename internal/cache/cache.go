// Package cache is a small JSON cache on Redis with tag-based invalidation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/medgraph/medgraph/internal/config"
	"github.com/medgraph/medgraph/pkg/logger"
)

var Module = fx.Module("cache",
	fx.Provide(NewCache),
)

const keyPrefix = "medgraph:cache"

// Dial opens a client on the given logical database and verifies it with PING.
func Dial(ctx context.Context, rc config.RedisConfig, db int) (*redis.Client, error) {
	var opts *redis.Options
	if rc.URL != "" {
		parsed, err := redis.ParseURL(rc.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     rc.Addr(),
			Password: rc.Password,
		}
	}
	opts.DB = db
	if rc.PoolSize > 0 {
		opts.PoolSize = rc.PoolSize
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis db %d: %w", db, err)
	}
	return client, nil
}

// Cache stores JSON documents under a fixed prefix.
type Cache struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

// New wraps an existing client.
func New(client *redis.Client, prefix string, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{client: client, prefix: prefix, log: log.With(logger.Scope("cache"))}
}

// Connect dials REDIS_CACHE_DB and wraps it with the application key prefix.
func Connect(ctx context.Context, rc config.RedisConfig, log *slog.Logger) (*Cache, error) {
	client, err := Dial(ctx, rc, rc.CacheDB)
	if err != nil {
		return nil, err
	}

	c := New(client, keyPrefix, log)
	c.log.Info("redis cache connected",
		slog.String("addr", client.Options().Addr),
		slog.Int("db", rc.CacheDB),
	)
	return c, nil
}

// NewCache dials the cache database and closes it on app stop.
func NewCache(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*Cache, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Connect(ctx, cfg.Redis, log)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			c.log.Info("closing redis cache")
			return c.Close()
		},
	})
	return c, nil
}

// Close closes the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) key(k string) string    { return c.prefix + ":" + k }
func (c *Cache) tagKey(t string) string { return c.prefix + ":tag:" + t }

// GetJSON loads key into dest. It reports false on a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache entry %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores value under key for ttl and indexes it under each tag.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration, tags ...string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry %s: %w", key, err)
	}

	full := c.key(key)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, full, data, ttl)
		for _, tag := range tags {
			pipe.SAdd(ctx, c.tagKey(tag), full)
			if ttl > 0 {
				pipe.Expire(ctx, c.tagKey(tag), ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set cache entry %s: %w", key, err)
	}
	return nil
}

// InvalidateTag deletes every entry indexed under tag and returns how many
// keys were removed.
func (c *Cache) InvalidateTag(ctx context.Context, tag string) (int64, error) {
	tk := c.tagKey(tag)
	members, err := c.client.SMembers(ctx, tk).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read cache tag %s: %w", tag, err)
	}

	if len(members) == 0 {
		return 0, c.client.Del(ctx, tk).Err()
	}

	var del *redis.IntCmd
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, members...)
		pipe.Del(ctx, tk)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate cache tag %s: %w", tag, err)
	}

	c.log.Debug("cache tag invalidated", slog.String("tag", tag), slog.Int64("entries", del.Val()))
	return del.Val(), nil
}

// Delete removes a single entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
