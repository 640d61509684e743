package history

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisKV persists the history log in Redis.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV constructs a RedisKV.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// Get reads the serialized log. An absent key yields nil bytes.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Set writes the serialized log. The log has no expiry; capacity bounds it.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

var _ KV = (*RedisKV)(nil)
