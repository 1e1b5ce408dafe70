package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-based implementation of Store.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed store and verifies connectivity.
func NewRedisStore(address, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "report-gateway:",
	}, nil
}

// Get returns the value stored under key, or ErrNotFound.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, nil
}

// Put stores value under key.
func (r *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// PutIfAbsent stores value under key only if it does not already exist,
// using SETNX so concurrent writers from other instances cannot both win.
func (r *RedisStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	won, err := r.client.SetNX(ctx, r.prefix+key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return won, nil
}

// Delete removes key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IncrWindow atomically increments the fixed-window counter under key.
// INCR is atomic on the server; EXPIRE NX attaches the window length exactly
// once, so the window is anchored to the first increment even if the
// instance that performed it crashes before the follow-up commands run.
func (r *RedisStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	k := r.prefix + key

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, window)
		pttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	remaining := pttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return incr.Val(), time.Now().Add(remaining), nil
}

// Ping verifies the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
