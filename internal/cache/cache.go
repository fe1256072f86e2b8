// Package cache 提供按 key 存放聚合快照的可注入缓存。
//
// 进程内只构造一次，由 Loader 与 Coordinator 共享同一个实例。
package cache

import (
	"context"
	"time"
)

// Cache 是带 TTL 的键值缓存。Get 的 bool 表示是否命中。
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
