package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	URL     string
	Timeout time.Duration
}

// RedisConfigFromEnv reads Redis config from environment variables.
func RedisConfigFromEnv() RedisConfig {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	return RedisConfig{URL: url, Timeout: 5 * time.Second}
}

// ConnectRedis opens a Redis client and verifies connectivity with a ping.
// The OTP challenge store lives here so restarts and multiple API instances
// share one set of outstanding challenges.
func ConnectRedis(cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
