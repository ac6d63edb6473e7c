// Package redis dials the shared go-redis client from service configuration.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"callguard/internal/platform/config"
)

// New builds a redis client from cfg and verifies the connection with a ping.
// A blank URL means redis is not configured: callers get a nil client and run
// without the cross-instance sweep lease.
func New(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
