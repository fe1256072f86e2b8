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

// 写操作名，用于错误、日志与指标。
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpUpsert = "upsert"
)

// Invalidator 是写操作成功后需要通知的缓存。
type Invalidator interface {
	Invalidate(ctx context.Context, userID uint)
}

// EntityMutations 是单一实体的增删改，归属用户只从会话注入。
// 校验在任何存储调用之前完成；失败时缓存保持不变。
type EntityMutations[T any, PT store.Owned[T], I Patch[T]] struct {
	entity      string
	table       *store.Table[T, PT]
	validate    func(*T) error
	invalidator Invalidator
	publisher   notify.Publisher
	logger      *slog.Logger
}

// NewEntityMutations 构造实体写操作；validate 对应用补丁后的整行做校验。
func NewEntityMutations[T any, PT store.Owned[T], I Patch[T]](
	entity string,
	table *store.Table[T, PT],
	validate func(*T) error,
	invalidator Invalidator,
	publisher notify.Publisher,
	logger *slog.Logger,
) *EntityMutations[T, PT, I] {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityMutations[T, PT, I]{
		entity:      entity,
		table:       table,
		validate:    validate,
		invalidator: invalidator,
		publisher:   publisher,
		logger:      logger.With(slog.String("entity", entity)),
	}
}

// Entity 返回实体名。
func (m *EntityMutations[T, PT, I]) Entity() string { return m.entity }

// Create 校验输入并写入一条新记录。
func (m *EntityMutations[T, PT, I]) Create(ctx context.Context, userID uint, in I) (T, error) {
	var zero, row T
	if userID == 0 {
		return zero, ErrNoSession
	}
	if err := m.prepare(&row, in); err != nil {
		return zero, m.fail(OpCreate, userID, err)
	}
	if err := m.table.Insert(ctx, userID, &row); err != nil {
		return zero, m.fail(OpCreate, userID, err)
	}
	m.committed(ctx, userID, OpCreate)
	return row, nil
}

// Update 把补丁应用到当前用户名下 id 对应的记录上。
// 记录不存在或属于他人时返回的错误满足 errors.Is(err, store.ErrNotFound)。
func (m *EntityMutations[T, PT, I]) Update(ctx context.Context, userID, id uint, in I) (T, error) {
	var zero T
	if userID == 0 {
		return zero, ErrNoSession
	}
	if err := in.Validate(); err != nil {
		return zero, m.fail(OpUpdate, userID, err)
	}
	row, err := m.table.Update(ctx, userID, id, func(row *T) error {
		if err := in.Apply(row); err != nil {
			return err
		}
		return m.validate(row)
	})
	if err != nil {
		return zero, m.fail(OpUpdate, userID, err)
	}
	m.committed(ctx, userID, OpUpdate)
	return row, nil
}

// Delete 删除当前用户名下 id 对应的记录。
func (m *EntityMutations[T, PT, I]) Delete(ctx context.Context, userID, id uint) error {
	if userID == 0 {
		return ErrNoSession
	}
	if err := m.table.Delete(ctx, userID, id); err != nil {
		return m.fail(OpDelete, userID, err)
	}
	m.committed(ctx, userID, OpDelete)
	return nil
}

func (m *EntityMutations[T, PT, I]) prepare(row *T, in I) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if err := in.Apply(row); err != nil {
		return err
	}
	return m.validate(row)
}

func (m *EntityMutations[T, PT, I]) fail(op string, userID uint, err error) error {
	return mutationFailed(m.logger, m.entity, op, userID, err)
}

func (m *EntityMutations[T, PT, I]) committed(ctx context.Context, userID uint, op string) {
	mutationCommitted(ctx, m.invalidator, m.publisher, m.logger, m.entity, op, userID)
}

// mutationFailed 区分校验错误与存储错误；后者统一包装为 MutationError。
func mutationFailed(logger *slog.Logger, entity, op string, userID uint, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		metrics.ObserveMutation(entity, op, "invalid")
		return verr
	}
	metrics.ObserveMutation(entity, op, "failed")
	if !errors.Is(err, store.ErrNotFound) {
		logger.Error("mutation failed",
			slog.String("op", op),
			slog.Uint64("user_id", uint64(userID)),
			slog.Any("error", err),
		)
	}
	return &MutationError{Entity: entity, Op: op, Err: err}
}

func mutationCommitted(
	ctx context.Context,
	invalidator Invalidator,
	publisher notify.Publisher,
	logger *slog.Logger,
	entity, op string,
	userID uint,
) {
	metrics.ObserveMutation(entity, op, "ok")
	if invalidator != nil {
		invalidator.Invalidate(ctx, userID)
	}
	msg := notify.Message{Type: notify.TypeDashboardInvalidated, Entity: entity, Op: op}
	if err := publisher.Publish(ctx, userID, msg); err != nil {
		logger.Warn("publish invalidation failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.Any("error", err),
		)
	}
}

// Coordinator 汇总五类实体的写操作。
type Coordinator struct {
	Projects   *EntityMutations[database.Project, *database.Project, ProjectInput]
	Education  *EntityMutations[database.Education, *database.Education, EducationInput]
	Experience *EntityMutations[database.Experience, *database.Experience, ExperienceInput]
	Blogs      *EntityMutations[database.Blog, *database.Blog, BlogInput]
	Profiles   *ProfileMutations
}

// NewCoordinator 用同一个缓存构造全部实体的写操作。
func NewCoordinator(
	tables store.Tables,
	cache ProfileCache,
	usernames *UsernameChecker,
	publisher notify.Publisher,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		Projects: NewEntityMutations[database.Project, *database.Project, ProjectInput](
			SectionProjects, tables.Projects, validateProject, cache, publisher, logger),
		Education: NewEntityMutations[database.Education, *database.Education, EducationInput](
			SectionEducation, tables.Education, validateEducation, cache, publisher, logger),
		Experience: NewEntityMutations[database.Experience, *database.Experience, ExperienceInput](
			SectionExperience, tables.Experience, validateExperience, cache, publisher, logger),
		Blogs: NewEntityMutations[database.Blog, *database.Blog, BlogInput](
			SectionBlogs, tables.Blogs, validateBlog, cache, publisher, logger),
		Profiles: NewProfileMutations(tables.Profiles, cache, usernames, publisher, logger),
	}
}
