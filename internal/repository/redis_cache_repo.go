package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/citadel-io/citadel-auth/internal/domain"
)

// RedisCacheRepo implements domain.Cache using Redis. Counter increments
// and GetDel map directly onto single Redis commands, so they are atomic
// under concurrent requests without client-side coordination.
type RedisCacheRepo struct {
	client *redis.Client
}

// NewRedisCacheRepo creates a new repository instance.
func NewRedisCacheRepo(client *redis.Client) *RedisCacheRepo {
	return &RedisCacheRepo{client: client}
}

// Get returns the value for key, or domain.ErrCacheMiss.
func (r *RedisCacheRepo) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrCacheMiss
		}
		return "", fmt.Errorf("redis error: %w", err)
	}
	return value, nil
}

// Set writes a value with a TTL.
func (r *RedisCacheRepo) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// Del removes one or more keys. Absent keys are ignored.
func (r *RedisCacheRepo) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// GetDel atomically reads and removes a key. Exactly one of two concurrent
// callers for the same key observes the value; the other gets a miss.
func (r *RedisCacheRepo) GetDel(ctx context.Context, key string) (string, error) {
	value, err := r.client.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrCacheMiss
		}
		return "", fmt.Errorf("redis error: %w", err)
	}
	return value, nil
}

// Incr atomically increments a counter, creating it at 1.
func (r *RedisCacheRepo) Incr(ctx context.Context, key string) (int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	return count, nil
}

// Expire sets a TTL on an existing key.
func (r *RedisCacheRepo) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// Exists reports whether the key is present.
func (r *RedisCacheRepo) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n > 0, nil
}

// TTL returns the remaining lifetime of a key, zero if it has none.
func (r *RedisCacheRepo) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
