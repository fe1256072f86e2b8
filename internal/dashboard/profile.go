package dashboard

import (
	"context"
	"errors"
	"log/slog"

	"phFolio/internal/database"
	"phFolio/internal/metrics"
	"phFolio/internal/notify"
	"phFolio/internal/store"
)

// ProfileCache 是资料写操作需要的缓存能力，Loader 实现了它。
type ProfileCache interface {
	Invalidator
	InvalidatePublic(ctx context.Context, username string)
	PatchProfile(ctx context.Context, userID uint, profile database.Profile)
}

// ProfileMutations 是资料的写操作：以用户 id 为键 upsert，成功后直接修补缓存。
type ProfileMutations struct {
	table     *store.Table[database.Profile, *database.Profile]
	cache     ProfileCache
	usernames *UsernameChecker
	publisher notify.Publisher
	logger    *slog.Logger
}

func NewProfileMutations(
	table *store.Table[database.Profile, *database.Profile],
	cache ProfileCache,
	usernames *UsernameChecker,
	publisher notify.Publisher,
	logger *slog.Logger,
) *ProfileMutations {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileMutations{
		table:     table,
		cache:     cache,
		usernames: usernames,
		publisher: publisher,
		logger:    logger.With(slog.String("entity", SectionProfile)),
	}
}

// Ensure 保证用户有一行资料。并发创建时的主键冲突被视为成功。
func (m *ProfileMutations) Ensure(ctx context.Context, userID uint) error {
	if userID == 0 {
		return ErrNoSession
	}
	created, err := m.table.InsertIgnore(ctx, userID, &database.Profile{SelectedTemplate: TemplateMinimal})
	if err != nil {
		if store.IsDuplicateKey(err) {
			return nil
		}
		return mutationFailed(m.logger, SectionProfile, OpCreate, userID, err)
	}
	if created {
		m.logger.Info("profile created", slog.Uint64("user_id", uint64(userID)))
		m.cache.Invalidate(ctx, userID)
	}
	return nil
}

// Upsert 插入或更新当前用户的资料，并用返回值修补缓存中的 profile。
func (m *ProfileMutations) Upsert(ctx context.Context, userID uint, in ProfileInput) (database.Profile, error) {
	if userID == 0 {
		return database.Profile{}, ErrNoSession
	}
	if err := in.Validate(); err != nil {
		return database.Profile{}, mutationFailed(m.logger, SectionProfile, OpUpsert, userID, err)
	}
	if in.Username != nil && *in.Username != "" && m.usernames != nil {
		check := m.usernames.Check(ctx, userID, *in.Username)
		if check.Status == UsernameTaken {
			metrics.ObserveMutation(SectionProfile, OpUpsert, "invalid")
			return database.Profile{}, ErrUsernameTaken
		}
		// 检查失败时交给唯一索引兜底。
	}

	var previous string
	profile, err := m.table.Upsert(ctx, userID, func(p *database.Profile) error {
		previous = p.UsernameOrEmpty()
		if err := in.Apply(p); err != nil {
			return err
		}
		return validateProfile(p)
	})
	if err != nil {
		if store.IsDuplicateKey(err) {
			metrics.ObserveMutation(SectionProfile, OpUpsert, "invalid")
			return database.Profile{}, ErrUsernameTaken
		}
		return database.Profile{}, mutationFailed(m.logger, SectionProfile, OpUpsert, userID, err)
	}

	metrics.ObserveMutation(SectionProfile, OpUpsert, "ok")
	m.cache.PatchProfile(ctx, userID, profile)
	m.cache.InvalidatePublic(ctx, previous)
	if current := profile.UsernameOrEmpty(); current != previous {
		m.cache.InvalidatePublic(ctx, current)
	}
	msg := notify.Message{Type: notify.TypeDashboardInvalidated, Entity: SectionProfile, Op: OpUpsert}
	if err := m.publisher.Publish(ctx, userID, msg); err != nil {
		m.logger.Warn("publish invalidation failed", slog.Uint64("user_id", uint64(userID)), slog.Any("error", err))
	}
	return profile, nil
}

// SetAvatar 在头像上传成功后记录公开地址。
func (m *ProfileMutations) SetAvatar(ctx context.Context, userID uint, url string) (database.Profile, error) {
	if url == "" {
		return database.Profile{}, errors.New("empty avatar url")
	}
	return m.Upsert(ctx, userID, ProfileInput{AvatarURL: &url})
}
