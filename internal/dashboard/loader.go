package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"

	"phFolio/internal/cache"
	"phFolio/internal/database"
	"phFolio/internal/metrics"
	"phFolio/internal/store"
)

const (
	scopeDashboard = "dashboard"
	scopePublic    = "public"
)

// Reader 是聚合加载所依赖的只读记录存储。
type Reader interface {
	Projects(ctx context.Context, userID uint, publishedOnly bool) ([]database.Project, error)
	Education(ctx context.Context, userID uint) ([]database.Education, error)
	Experience(ctx context.Context, userID uint) ([]database.Experience, error)
	Blogs(ctx context.Context, userID uint, publishedOnly bool) ([]database.Blog, error)
	Profile(ctx context.Context, userID uint) (*database.Profile, error)
	ProfileByUsername(ctx context.Context, username string) (*database.Profile, error)
}

// LoaderOptions 控制缓存时长与单次拉取的超时。
type LoaderOptions struct {
	DashboardTTL time.Duration
	PublicTTL    time.Duration
	FetchTimeout time.Duration
}

// DefaultLoaderOptions 返回默认配置：看板 30 分钟，公开页 5 分钟。
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		DashboardTTL: 30 * time.Minute,
		PublicTTL:    5 * time.Minute,
		FetchTimeout: 10 * time.Second,
	}
}

// Loader 以用户为 key 批量加载并缓存看板聚合数据。
//
// 同一 key 的并发加载只会触发一次网络往返；失效后开始的加载不会
// 被之前仍在进行中的旧结果覆盖。
type Loader struct {
	reader Reader
	cache  cache.Cache[Aggregate]
	opts   LoaderOptions
	logger *slog.Logger

	mu          sync.Mutex
	patchMu     sync.Mutex
	flights     *singleflight.Group
	epoch       uint64
	generations map[string]uint64
}

// NewLoader 构造 Loader。
func NewLoader(reader Reader, c cache.Cache[Aggregate], opts LoaderOptions, logger *slog.Logger) *Loader {
	defaults := DefaultLoaderOptions()
	if opts.DashboardTTL <= 0 {
		opts.DashboardTTL = defaults.DashboardTTL
	}
	if opts.PublicTTL <= 0 {
		opts.PublicTTL = defaults.PublicTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaults.FetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		reader:      reader,
		cache:       c,
		opts:        opts,
		logger:      logger,
		flights:     new(singleflight.Group),
		generations: make(map[string]uint64),
	}
}

// Dashboard 返回用户的看板快照。userID 为 0 时返回 ErrNoSession。
// 子查询失败只会降级对应分区，不会让整体失败。
func (l *Loader) Dashboard(ctx context.Context, userID uint) (Aggregate, error) {
	if userID == 0 {
		return Aggregate{}, ErrNoSession
	}
	key := DashboardKey(userID)
	return l.load(ctx, scopeDashboard, key, l.opts.DashboardTTL, func(ctx context.Context) (Aggregate, error) {
		results := l.settleAll(ctx, userID, false, func() (*database.Profile, error) {
			return l.reader.Profile(ctx, userID)
		})
		return l.merge(key, results), nil
	})
}

// Public 是无需登录的只读路径：按用户名加载，项目与博客仅包含已发布的记录。
func (l *Loader) Public(ctx context.Context, username string) (Aggregate, error) {
	if ValidateUsernameFormat(username) != nil {
		return Aggregate{}, ErrPortfolioNotFound
	}
	key := PublicKey(username)
	return l.load(ctx, scopePublic, key, l.opts.PublicTTL, func(ctx context.Context) (Aggregate, error) {
		profile, err := l.reader.ProfileByUsername(ctx, username)
		if errors.Is(err, store.ErrNotFound) {
			return Aggregate{}, ErrPortfolioNotFound
		}
		if err != nil {
			return Aggregate{}, fmt.Errorf("resolve portfolio %q: %w", username, err)
		}
		results := l.settleAll(ctx, profile.ID, true, func() (*database.Profile, error) {
			return profile, nil
		})
		return l.merge(key, results), nil
	})
}

// Refresh 强制失效并重新加载当前用户的快照。
func (l *Loader) Refresh(ctx context.Context, userID uint) (Aggregate, error) {
	if userID == 0 {
		return Aggregate{}, ErrNoSession
	}
	l.Invalidate(ctx, userID)
	return l.Dashboard(ctx, userID)
}

// Invalidate 使用户的看板快照失效；若快照里有用户名，同时失效对应的公开快照。
func (l *Loader) Invalidate(ctx context.Context, userID uint) {
	key := DashboardKey(userID)
	l.bump(key)

	l.InvalidatePublic(ctx, l.usernameOf(ctx, key, userID))
	l.dropSnapshot(ctx, key, userID)
}

// InvalidatePublic 使公开作品集快照失效。
func (l *Loader) InvalidatePublic(ctx context.Context, username string) {
	if username == "" {
		return
	}
	key := PublicKey(username)
	l.bump(key)
	if err := l.cache.Invalidate(ctx, key); err != nil {
		l.logger.Error("invalidate public cache failed",
			slog.String("username", username),
			slog.Any("error", err),
		)
	}
}

// PatchProfile 直接用写操作的返回值替换缓存中的资料，避免整份重新加载。
// 没有缓存时不做任何事，下一次读取自然会拉取最新数据。
// 缓存里的资料比 profile 更新时保持不动；先后无法判断时丢弃快照。
func (l *Loader) PatchProfile(ctx context.Context, userID uint, profile database.Profile) {
	key := DashboardKey(userID)
	l.bump(key)

	l.patchMu.Lock()
	defer l.patchMu.Unlock()

	agg, ok, err := l.cache.Get(ctx, key)
	if err != nil || !ok {
		return
	}
	if cached := agg.Profile; cached != nil && !profile.UpdatedAt.IsZero() {
		switch {
		case profile.UpdatedAt.Before(cached.UpdatedAt):
			return
		case profile.UpdatedAt.Equal(cached.UpdatedAt) && !sameProfile(*cached, profile):
			l.dropSnapshot(ctx, key, userID)
			return
		}
	}
	patched := agg
	patched.Profile = &profile
	patched.Degraded = withoutSection(agg.Degraded, SectionProfile)
	if err := l.cache.Set(ctx, key, patched, l.opts.DashboardTTL); err != nil {
		l.logger.Warn("patch cached profile failed, dropping entry",
			slog.Uint64("user_id", uint64(userID)),
			slog.Any("error", err),
		)
		_ = l.cache.Invalidate(ctx, key)
	}
}

func (l *Loader) dropSnapshot(ctx context.Context, key string, userID uint) {
	if err := l.cache.Invalidate(ctx, key); err != nil {
		l.logger.Error("invalidate dashboard cache failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.Any("error", err),
		)
	}
}

// ClearAll 清空全部缓存快照。
func (l *Loader) ClearAll(ctx context.Context) error {
	l.mu.Lock()
	l.epoch++
	l.generations = make(map[string]uint64)
	l.flights = new(singleflight.Group)
	l.mu.Unlock()

	if err := l.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear aggregate cache: %w", err)
	}
	return nil
}

// SignedIn 在新会话开始时丢弃该用户可能残留的快照。
func (l *Loader) SignedIn(ctx context.Context, userID uint) {
	l.Invalidate(ctx, userID)
}

// SignedOut 在登出时清空整个缓存，而不仅是当前用户的 key。
func (l *Loader) SignedOut(ctx context.Context, userID uint) {
	if err := l.ClearAll(ctx); err != nil {
		l.logger.Error("clear cache on sign-out failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.Any("error", err),
		)
	}
}

func (l *Loader) load(
	ctx context.Context,
	scope string,
	key string,
	ttl time.Duration,
	fetch func(context.Context) (Aggregate, error),
) (Aggregate, error) {
	if agg, ok := l.lookup(ctx, key); ok {
		metrics.ObserveCacheLookup(scope, true)
		return agg, nil
	}
	metrics.ObserveCacheLookup(scope, false)

	value, err, shared := l.group().Do(key, func() (any, error) {
		if agg, ok := l.lookup(ctx, key); ok {
			return agg, nil
		}

		stamp := l.stamp(key)
		// 合并后的请求不应因第一个调用方取消而失败。
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.FetchTimeout)
		defer cancel()

		agg, err := fetch(fetchCtx)
		if err != nil {
			return Aggregate{}, err
		}
		if l.isCurrent(key, stamp) {
			if err := l.cache.Set(fetchCtx, key, agg, ttl); err != nil {
				l.logger.Warn("store aggregate in cache failed", slog.String("key", key), slog.Any("error", err))
			}
		}
		return agg, nil
	})
	if shared {
		metrics.ObserveCoalesced(scope)
	}
	if err != nil {
		return Aggregate{}, err
	}
	return value.(Aggregate), nil
}

// usernameOf 优先从缓存的快照取用户名，没有快照时回查资料表。
func (l *Loader) usernameOf(ctx context.Context, key string, userID uint) string {
	if agg, ok := l.lookup(ctx, key); ok && agg.Profile != nil {
		return agg.Profile.UsernameOrEmpty()
	}
	profile, err := l.reader.Profile(ctx, userID)
	if err != nil {
		l.logger.Warn("resolve username for public invalidation failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.Any("error", err),
		)
		return ""
	}
	return profile.UsernameOrEmpty()
}

func (l *Loader) lookup(ctx context.Context, key string) (Aggregate, bool) {
	agg, ok, err := l.cache.Get(ctx, key)
	if err != nil {
		l.logger.Warn("read aggregate cache failed, treating as miss", slog.String("key", key), slog.Any("error", err))
		return Aggregate{}, false
	}
	return agg, ok
}

func (l *Loader) settleAll(ctx context.Context, userID uint, publishedOnly bool, profile func() (*database.Profile, error)) PartialResults {
	var results PartialResults
	wg := conc.NewWaitGroup()
	settle(wg, &results.Projects, func() ([]database.Project, error) {
		return l.reader.Projects(ctx, userID, publishedOnly)
	})
	settle(wg, &results.Education, func() ([]database.Education, error) {
		return l.reader.Education(ctx, userID)
	})
	settle(wg, &results.Experience, func() ([]database.Experience, error) {
		return l.reader.Experience(ctx, userID)
	})
	settle(wg, &results.Blogs, func() ([]database.Blog, error) {
		return l.reader.Blogs(ctx, userID, publishedOnly)
	})
	settle(wg, &results.Profile, profile)
	wg.Wait()
	return results
}

func (l *Loader) merge(key string, results PartialResults) Aggregate {
	for _, failure := range results.failures() {
		metrics.ObserveSubqueryFailure(failure.section)
		l.logger.Warn("aggregate section degraded",
			slog.String("key", key),
			slog.String("section", failure.section),
			slog.Any("error", failure.err),
		)
	}
	return MergeAggregate(results)
}

type generationStamp struct {
	epoch uint64
	gen   uint64
}

func (l *Loader) stamp(key string) generationStamp {
	l.mu.Lock()
	defer l.mu.Unlock()
	return generationStamp{epoch: l.epoch, gen: l.generations[key]}
}

func (l *Loader) isCurrent(key string, s generationStamp) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch == s.epoch && l.generations[key] == s.gen
}

// bump 让进行中的旧加载不再写缓存，并让后续调用方发起新的加载。
func (l *Loader) bump(key string) {
	l.mu.Lock()
	l.generations[key]++
	flights := l.flights
	l.mu.Unlock()
	flights.Forget(key)
}

func (l *Loader) group() *singleflight.Group {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flights
}

func sameProfile(a, b database.Profile) bool {
	return a.UsernameOrEmpty() == b.UsernameOrEmpty() &&
		a.FullName == b.FullName &&
		a.Headline == b.Headline &&
		a.Bio == b.Bio &&
		a.Location == b.Location &&
		a.Website == b.Website &&
		a.Github == b.Github &&
		a.Linkedin == b.Linkedin &&
		a.Twitter == b.Twitter &&
		a.AvatarURL == b.AvatarURL &&
		a.SelectedTemplate == b.SelectedTemplate
}

func withoutSection(sections []string, section string) []string {
	var out []string
	for _, s := range sections {
		if s != section {
			out = append(out, s)
		}
	}
	return out
}
