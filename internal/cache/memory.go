package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = 10 * time.Minute

// Memory 是基于 go-cache 的进程内实现，可并发使用。
type Memory[V any] struct {
	store *gocache.Cache
}

// NewMemory 构造进程内缓存；defaultTTL 在 Set 传入非正 ttl 时使用。
func NewMemory[V any](defaultTTL time.Duration) *Memory[V] {
	return &Memory[V]{store: gocache.New(defaultTTL, memoryCleanupInterval)}
}

func (m *Memory[V]) Get(_ context.Context, key string) (V, bool, error) {
	var zero V
	raw, found := m.store.Get(key)
	if !found {
		return zero, false, nil
	}
	value, ok := raw.(V)
	if !ok {
		m.store.Delete(key)
		return zero, false, nil
	}
	return value, true, nil
}

func (m *Memory[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.store.Set(key, value, ttl)
	return nil
}

func (m *Memory[V]) Invalidate(_ context.Context, key string) error {
	m.store.Delete(key)
	return nil
}

func (m *Memory[V]) Clear(context.Context) error {
	m.store.Flush()
	return nil
}

// Len 返回当前条目数（含已过期但未清理的条目）。
func (m *Memory[V]) Len() int {
	return m.store.ItemCount()
}
