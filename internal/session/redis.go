package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "clinic_session:"

// RedisStorage keeps each session as a hash whose TTL is the remaining
// token lifetime.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStorage(client redis.UniversalClient) *RedisStorage {
	return &RedisStorage{
		client: client,
		prefix: defaultPrefix,
	}
}

func (r *RedisStorage) key(sid string) string {
	return r.prefix + sid
}

func (r *RedisStorage) Save(ctx context.Context, sid string, fields map[string]string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("session is expired")
	}
	key := r.key(sid)
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

func (r *RedisStorage) Load(ctx context.Context, sid string) (map[string]string, error) {
	fields, err := r.client.HGetAll(ctx, r.key(sid)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis load: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

func (r *RedisStorage) Delete(ctx context.Context, sid string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(sid)).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete: %w", err)
	}
	return n > 0, nil
}
