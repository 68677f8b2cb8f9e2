package cartstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/checkout-engine/internal/cart"
)

// Session carts expire after a period of inactivity; a fresh session simply
// starts with an empty cart.
const cartTTL = 7 * 24 * time.Hour

// RedisStore persists session carts in Redis as JSON blobs keyed by session id.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore accepts a "redis://..." URL or a plain "host:port" address.
func NewRedisStore(ctx context.Context, redisAddr string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisAddr)
	if err != nil {
		opts = &redis.Options{
			Addr:         redisAddr,
			MinIdleConns: 1,
			DialTimeout:  10 * time.Second,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func cartKey(sessionID string) string {
	return "cart:" + sessionID
}

func (r *RedisStore) Load(ctx context.Context, sessionID string) ([]cart.LineItem, error) {
	data, err := r.client.Get(ctx, cartKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", sessionID, err)
	}

	var lines []cart.LineItem
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", sessionID, err)
	}
	return lines, nil
}

func (r *RedisStore) Save(ctx context.Context, sessionID string, lines []cart.LineItem) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", sessionID, err)
	}
	return r.client.Set(ctx, cartKey(sessionID), data, cartTTL).Err()
}

func (r *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, cartKey(sessionID)).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
