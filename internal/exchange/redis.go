package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "exchange:"

// RedisStore backs the exchange map with Redis, using native key TTLs.
// Intended for deployments where the broker runs more than one replica.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, id string, value json.RawMessage, ttl time.Duration) error {
	if id == "" {
		return fmt.Errorf("exchange id is empty")
	}
	if !json.Valid(value) {
		return fmt.Errorf("exchange value is not valid JSON")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	if err := s.client.Set(ctx, redisKeyPrefix+id, string(value), ttl).Err(); err != nil {
		return fmt.Errorf("put exchange record: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, fmt.Errorf("exchange id is empty")
	}
	raw, err := s.client.Get(ctx, redisKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exchange record: %w", err)
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("stored exchange value is invalid JSON for id=%q", id)
	}
	return json.RawMessage(raw), nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("exchange id is empty")
	}
	if err := s.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete exchange record: %w", err)
	}
	return nil
}
