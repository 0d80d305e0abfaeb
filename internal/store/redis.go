package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs duplicate suppression and rate limiting with Redis so
// multiple relay nodes share one retention window.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string, retention time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client, retention: retention}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// seenKey returns the key for a room's acknowledged message ID.
func seenKey(roomID, messageID string) string {
	return fmt.Sprintf("seen:%s:%s", roomID, messageID)
}

// rateLimitKey returns the key for a session's rate limit counter.
func rateLimitKey(sessionID string) string {
	return fmt.Sprintf("ratelimit:%s", sessionID)
}

// MarkSeen records the pair with the retention TTL. SET NX makes the
// check-and-mark atomic across nodes.
func (s *RedisStore) MarkSeen(ctx context.Context, roomID, messageID string) (bool, error) {
	set, err := s.client.SetNX(ctx, seenKey(roomID, messageID), "1", s.retention).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Allow increments the session's counter and reports whether it is within
// the limit for the current window.
func (s *RedisStore) Allow(ctx context.Context, sessionID string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	key := rateLimitKey(sessionID)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return incr.Val() <= int64(limit), nil
}
