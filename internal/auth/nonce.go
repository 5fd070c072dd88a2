package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const nonceKeyPrefix = "auth:nonce:"

var ErrNonceNotFound = errors.New("login nonce missing or expired")

// RedisNonceStore keeps one outstanding login nonce per wallet address.
// Issuing a new nonce replaces the previous one.
type RedisNonceStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisNonceStore(client *redis.Client, ttl time.Duration) *RedisNonceStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisNonceStore{client: client, ttl: ttl}
}

func nonceKey(address string) string {
	return nonceKeyPrefix + strings.ToLower(address)
}

func (s *RedisNonceStore) Issue(ctx context.Context, address string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	nonce := hex.EncodeToString(buf)
	if err := s.client.Set(ctx, nonceKey(address), nonce, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store nonce: %w", err)
	}
	return nonce, nil
}

// Consume atomically removes the nonce for address and fails unless it
// matched. A consumed nonce cannot be replayed.
func (s *RedisNonceStore) Consume(ctx context.Context, address, nonce string) error {
	stored, err := s.client.GetDel(ctx, nonceKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNonceNotFound
	}
	if err != nil {
		return fmt.Errorf("consume nonce: %w", err)
	}
	if stored != nonce {
		return ErrNonceNotFound
	}
	return nil
}
