package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCacheRepo implements the core.CacheRepository interface using Redis.
// The engine uses it for the keyed parent-completion lock.
type RedisCacheRepo struct {
	client redis.UniversalClient
}

// NewRedisCacheRepo creates a new RedisCacheRepo with the given Redis client.
func NewRedisCacheRepo(client redis.UniversalClient) *RedisCacheRepo {
	return &RedisCacheRepo{client: client}
}

// Set stores a value in Redis with the given key and TTL.
func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Get retrieves a value from Redis by key, returning nil when absent.
func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	result, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return []byte(result), nil
}

// Delete removes a key from Redis, reporting whether it existed.
func (r *RedisCacheRepo) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	result, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return result > 0, nil
}

// SetIfNotExists atomically sets a key only when absent (SET NX).
func (r *RedisCacheRepo) SetIfNotExists(
	ctx context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}
