// Package cache memoizes search results in Redis. The cache is an optional
// collaborator: read failures degrade to cache misses and write failures are
// logged, so an unavailable Redis never fails the surrounding operation.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const scanBatchSize = 100

// Options configures the Redis connections.
type Options struct {
	Addr string
	DB   int
	// TTL bounds the lifetime of cached entries. Zero means no expiry.
	TTL time.Duration
}

// Cache wraps a pair of Redis connections, one per read/write direction.
// Both handles are constructed once at startup and passed by reference to
// every consumer.
type Cache struct {
	read  *redis.Client
	write *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// New connects the read and write clients.
func New(opts Options, log zerolog.Logger) *Cache {
	return &Cache{
		read:  redis.NewClient(&redis.Options{Addr: opts.Addr, DB: opts.DB}),
		write: redis.NewClient(&redis.Options{Addr: opts.Addr, DB: opts.DB}),
		ttl:   opts.TTL,
		log:   log,
	}
}

// Get returns the cached value for key. A transport failure is reported as a
// miss, never as an error.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.read.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return "", false
	}
	return val, true
}

// Set stores value under key with the configured TTL. Best effort.
func (c *Cache) Set(ctx context.Context, key, value string) {
	if err := c.write.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Delete removes the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.write.Del(ctx, keys...).Err()
}

// DeleteByPattern removes every key matching pattern and returns the number
// of keys deleted.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	var keys []string
	iter := c.read.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := c.write.Del(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

// Close releases both connections.
func (c *Cache) Close() error {
	readErr := c.read.Close()
	writeErr := c.write.Close()
	if readErr != nil {
		return readErr
	}
	return writeErr
}
