package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is a Redis-backed Store. Sessions expire after the configured
// TTL so abandoned flows clean themselves up.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

func sessionKey(waID string) string {
	return fmt.Sprintf("session:%s", waID)
}

// Get loads and decodes the customer's session, or returns nil when absent.
func (r *RedisStore) Get(ctx context.Context, waID string) (*Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(waID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Set stores the session with the store TTL, last write wins.
func (r *RedisStore) Set(ctx context.Context, waID string, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.rdb.Set(ctx, sessionKey(waID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// Clear removes the customer's session.
func (r *RedisStore) Clear(ctx context.Context, waID string) error {
	if err := r.rdb.Del(ctx, sessionKey(waID)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
