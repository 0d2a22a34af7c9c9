package keyValueStore

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisStore wraps a single go-redis client.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore creates the client without contacting the server; use Connect to also probe it.
func NewRedisStore(opts Options, logger *slog.Logger) *RedisStore {
	opts.applyDefaults()
	client := redis.NewClient(redisOptions(opts))
	return &RedisStore{client: client, logger: logger}
}

func redisOptions(opts Options) *redis.Options {
	// one caller, one connection
	return &redis.Options{
		Addr:         opts.Address(),
		DB:           0,
		DialTimeout:  opts.ConnectTimeout,
		ReadTimeout:  opts.OperationTimeout,
		WriteTimeout: opts.OperationTimeout,
		PoolSize:     1,
		MaxRetries:   -1,
	}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
