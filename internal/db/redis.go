package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions holds the connection settings for OpenRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// OpenRedis returns a connected Redis client. Caller must call Close when done.
func OpenRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// RedisKeyspace wraps prefix in a Redis Cluster hash tag. Every key built on
// it hashes to one slot, so multi-key scripts run unchanged on a cluster.
func RedisKeyspace(prefix string) string {
	return "{" + strings.Trim(prefix, "{}") + "}"
}
