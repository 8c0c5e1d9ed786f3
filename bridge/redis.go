package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/bridgekit-go/internal/reliability"
	"github.com/redis/go-redis/v9"
)

// RedisConfig describes how to reach Redis
type RedisConfig struct {
	URI            string
	ReconnectDelay time.Duration
	MaxRetries     int
}

func (c RedisConfig) budget() (time.Duration, int) {
	delay := c.ReconnectDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	retries := c.MaxRetries
	if retries <= 0 {
		retries = 10
	}
	return delay, retries
}

// NewRedisClient parses the URI and applies a fixed reconnect delay with a
// bounded retry budget to the client. Nothing is dialed.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}

	delay, retries := cfg.budget()
	opts.MaxRetries = retries
	opts.MinRetryBackoff = delay
	opts.MaxRetryBackoff = delay

	return redis.NewClient(opts), nil
}

// WaitForRedis pings until the server answers or the retry budget is spent
func WaitForRedis(ctx context.Context, client redis.UniversalClient, cfg RedisConfig, logger *slog.Logger) error {
	delay, retries := cfg.budget()

	attempt := 0
	err := reliability.Retry(ctx, reliability.NewFixedDelay(delay, retries), func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis not ready", "attempt", attempt, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		return &reliability.RetryError{Op: "redis connect", Attempts: attempt, MaxAttempts: retries + 1, LastError: err}
	}
	return nil
}

// OpenRedis creates a client and waits for the server to answer
func OpenRedis(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	if err := WaitForRedis(ctx, client, cfg, logger); err != nil {
		_ = client.Close()
		return nil, err
	}

	opts := client.Options()
	logger.Info("connected to redis", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}
