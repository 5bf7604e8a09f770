// Package redisrepo stores a token tier in Redis. With a TTL the tier
// expires on its own, which makes it a natural session-scoped tier.
package redisrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/passport-session/tokenstore"
	"github.com/redis/go-redis/v9"
)

var _ tokenstore.Repo = (*RedisRepo)(nil)

type RedisRepo struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New stores keys under prefix. A zero ttl keeps them until deleted.
func New(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisRepo {
	return &RedisRepo{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *RedisRepo) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *RedisRepo) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", tokenstore.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (r *RedisRepo) Upsert(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisRepo) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
