package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const clearScanCount = 200

// Client 是 Redis 缓存用到的命令子集，redis.UniversalClient 满足它。
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// Redis 以 JSON 形式把值存进 Redis，适合多实例共享缓存。
// 所有 key 都带 prefix，Clear 只删除该前缀下的 key。
type Redis[V any] struct {
	client     Client
	prefix     string
	defaultTTL time.Duration
}

// NewRedis 构造 Redis 缓存。
func NewRedis[V any](client Client, prefix string, defaultTTL time.Duration) *Redis[V] {
	return &Redis[V]{client: client, prefix: prefix, defaultTTL: defaultTTL}
}

func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var value V
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	if err := json.Unmarshal(data, &value); err != nil {
		_ = r.client.Del(ctx, r.prefix+key).Err()
		return value, false, fmt.Errorf("decode cached %q: %w", key, err)
	}
	return value, true, nil
}

func (r *Redis[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %q: %w", key, err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (r *Redis[V]) Invalidate(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// Clear 用 SCAN 分批删除前缀下的全部 key。
func (r *Redis[V]) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", clearScanCount).Result()
		if err != nil {
			return fmt.Errorf("redis scan %q: %w", r.prefix, err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del batch: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
