package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/beacon/internal/config"
)

// NewRedis connects the client behind kvstore.RedisStore. REDIS_URL carries
// address, credentials and database number.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := waitReady("redis", defaultPingPolicy, ping); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
