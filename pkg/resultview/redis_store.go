package resultview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTTL bounds how long an idle view session is kept.
const DefaultRedisTTL = 24 * time.Hour

// RedisStore keeps the preferences of one view session in a Redis hash.
type RedisStore struct {
	client    *redis.Client
	sessionID string
	ttl       time.Duration
}

// NewRedisStore creates a store for the given view session. A zero ttl uses DefaultRedisTTL.
func NewRedisStore(client *redis.Client, sessionID string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{client: client, sessionID: sessionID, ttl: ttl}
}

func (s *RedisStore) hashKey() string {
	return "resultview:" + s.sessionID
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.hashKey(), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read view preference: %w", err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.hashKey(), key, value)
	pipe.Expire(ctx, s.hashKey(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write view preference: %w", err)
	}
	return nil
}

// Clear removes every preference of the session.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.hashKey()).Err()
}

var _ Store = (*RedisStore)(nil)
