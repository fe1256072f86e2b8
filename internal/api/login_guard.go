package api

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// loginStore 是登录保护用到的 Redis 命令子集。
type loginStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type loginVerdict int

const (
	loginAllowed loginVerdict = iota
	loginRateLimited
	loginLocked
)

// loginGuard 按 IP+用户名 限制每小时尝试次数，并在连续失败后锁定账号。
// Redis 不可用时放行，不阻断登录。
type loginGuard struct {
	store     loginStore
	perHour   int
	threshold int
	lockTTL   time.Duration
	now       func() time.Time
}

func newLoginGuard(store loginStore, perHour, threshold int, lockTTL time.Duration) *loginGuard {
	return &loginGuard{store: store, perHour: perHour, threshold: threshold, lockTTL: lockTTL, now: time.Now}
}

func (g *loginGuard) check(ctx context.Context, ip, username string) loginVerdict {
	if g == nil || g.store == nil {
		return loginAllowed
	}
	name := strings.ToLower(username)
	rateKey := "rate:login:" + ip + ":" + name + ":" + g.now().UTC().Format("2006010215")
	if count, err := g.incrWithTTL(ctx, rateKey, time.Hour); err == nil && g.perHour > 0 && count > int64(g.perHour) {
		return loginRateLimited
	}
	if ttl, _ := g.store.TTL(ctx, lockKey(name)).Result(); ttl > 0 {
		return loginLocked
	}
	return loginAllowed
}

// failed 记录一次失败，达到阈值后写入锁定 key。
func (g *loginGuard) failed(ctx context.Context, username string) {
	if g == nil || g.store == nil {
		return
	}
	name := strings.ToLower(username)
	count, err := g.incrWithTTL(ctx, failKey(name), g.lockTTL)
	if err != nil {
		return
	}
	if g.threshold > 0 && count >= int64(g.threshold) {
		_ = g.store.Set(ctx, lockKey(name), "1", g.lockTTL).Err()
	}
}

func (g *loginGuard) succeeded(ctx context.Context, username string) {
	if g == nil || g.store == nil {
		return
	}
	_ = g.store.Del(ctx, failKey(strings.ToLower(username))).Err()
}

func (g *loginGuard) incrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := g.store.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = g.store.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

func lockKey(username string) string { return "lock:login:" + username }
func failKey(username string) string { return "lock:login:fail:" + username }
