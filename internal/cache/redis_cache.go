package cache

import (
	"context"
	"errors"
	"time"

	"payment_processing/internal/metrics"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	c *redis.Client
}

func NewRedisCache(addr, password string, db int) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{c: rdb}
}

func (r *RedisCache) Close() error { return r.c.Close() }

// operation label: get/set/delete
const (
	opGet    = "get"
	opSet    = "set"
	opDelete = "delete"
)

// instrument считает запрос и длительность, done(err) фиксирует ошибку
func instrument(op string) (done func(err error)) {
	start := time.Now()
	metrics.IncRedisRequest(op)
	return func(err error) {
		metrics.ObserveRedisDuration(op, time.Since(start))
		if err != nil {
			metrics.IncRedisError(op)
		}
	}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	done := instrument(opGet)

	b, err := r.c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		done(nil)
		return nil, false, nil
	}
	done(err)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	done := instrument(opSet)
	err := r.c.Set(ctx, key, value, ttl).Err()
	done(err)
	return err
}

func (r *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	done := instrument(opDelete)
	err := r.c.Del(ctx, keys...).Err()
	done(err)
	return err
}

// SAdd/SMembers обслуживают набор list-ключей; в метриках относятся
// к set и get соответственно.
func (r *RedisCache) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	done := instrument(opSet)
	err := r.c.SAdd(ctx, key, members).Err()
	done(err)
	return err
}

func (r *RedisCache) SMembers(ctx context.Context, key string) ([]string, error) {
	done := instrument(opGet)
	res, err := r.c.SMembers(ctx, key).Result()
	done(err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	done := instrument(opSet)
	err := r.c.Expire(ctx, key, ttl).Err()
	done(err)
	return err
}

func (r *RedisCache) RawClient() *redis.Client { return r.c }
