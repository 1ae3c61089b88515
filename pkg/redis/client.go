// Package redis wraps a single go-redis client shared by the gateway's
// session, pub/sub, sequence, and offline-message stores.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// Client is the process-wide Redis handle, set by Init.
	Client *redis.Client

	ctx = context.Background()
)

// Config holds the connection parameters for Init.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int // default 100
}

// Init dials Redis and verifies reachability with PING. Must be called once
// before any other package in the gateway touches Client.
func Init(cfg *Config, log *zap.Logger) error {
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 100
	}

	Client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: 10,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: connect %s: %w", cfg.Addr, err)
	}
	if log != nil {
		log.Info("redis connected", zap.String("addr", cfg.Addr))
	}
	return nil
}

// Close releases the connection pool. Safe to call on a nil Client.
func Close() {
	if Client != nil {
		Client.Close()
	}
}

// Pipeline batches fn's commands into a single round trip.
func Pipeline(fn func(pipe redis.Pipeliner) error) error {
	_, err := Client.Pipelined(ctx, fn)
	return err
}

// Context returns the background context used for all Redis calls in this
// package's callers.
func Context() context.Context {
	return ctx
}
