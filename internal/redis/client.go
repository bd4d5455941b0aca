package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions carries the connection tuning that config owns. Zero values
// fall back to defaults sized for a single-clinic deployment.
type ClientOptions struct {
	Addr         string
	Username     string
	Password     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 2 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = o.ReadTimeout
	}
	if o.PoolSize <= 0 {
		o.PoolSize = 10
	}
	return o
}

func NewRedisClient(opts ClientOptions) (*redis.Client, error) {
	opts = opts.withDefaults()

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           0,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
