package chainwatch

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cursorKey       = "chain-watcher:cursor"
	processedPrefix = "chain-watcher:log:"
	processedTTL    = 7 * 24 * time.Hour
)

// RedisState keeps the cursor and processed-log markers in Redis.
type RedisState struct {
	client *redis.Client
}

func NewRedisState(client *redis.Client) *RedisState {
	return &RedisState{client: client}
}

func (s *RedisState) Cursor(ctx context.Context) (uint64, bool, error) {
	val, err := s.client.Get(ctx, cursorKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	block, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return block, true, nil
}

func (s *RedisState) SaveCursor(ctx context.Context, block uint64) error {
	return s.client.Set(ctx, cursorKey, strconv.FormatUint(block, 10), 0).Err()
}

func (s *RedisState) Processed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, processedPrefix+key).Result()
	return n > 0, err
}

func (s *RedisState) MarkProcessed(ctx context.Context, key, outcome string) error {
	return s.client.Set(ctx, processedPrefix+key, outcome, processedTTL).Err()
}
