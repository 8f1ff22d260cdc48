package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mariovalmir/chatwoot/internal/constants"
	"github.com/mariovalmir/chatwoot/internal/models"

	"github.com/redis/go-redis/v9"
)

var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is the shared cache used when several ingest processes run.
type Redis struct {
	cli *redis.Client
}

func NewRedis(cfg models.RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: missing addr")
	}

	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  seconds(cfg.DialTimeoutSec, constants.DefaultRedisDialTimeoutSec),
		ReadTimeout:  seconds(cfg.ReadTimeoutSec, constants.DefaultRedisIOTimeoutSec),
		WriteTimeout: seconds(cfg.WriteTimeoutSec, constants.DefaultRedisIOTimeoutSec),
	}
	return &Redis{cli: redis.NewClient(opts)}, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(cli *redis.Client) *Redis {
	return &Redis{cli: cli}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

func (r *Redis) Close() error { return r.cli.Close() }

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.cli.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.cli.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.cli.SetNX(ctx, key, value, ttl).Result()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.cli.Del(ctx, key).Err()
}

func (r *Redis) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, r.cli, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func seconds(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}
