package database

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aforo/aforo/pkg/config"
)

// ConnectRedis dials Redis for rate limiting. Returns nil on failure;
// callers degrade by disabling the limiter.
func ConnectRedis(cfg config.RedisConfig) *redis.Client {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil
	}
	return client
}
