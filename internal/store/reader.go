package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"phFolio/internal/database"
)

// Tables 汇总作品集相关的各张表。
type Tables struct {
	Profiles   *Table[database.Profile, *database.Profile]
	Projects   *Table[database.Project, *database.Project]
	Education  *Table[database.Education, *database.Education]
	Experience *Table[database.Experience, *database.Experience]
	Blogs      *Table[database.Blog, *database.Blog]
}

// NewTables 构造全部表访问对象；profiles 以 id 作为归属列。
func NewTables(db *gorm.DB) Tables {
	return Tables{
		Profiles:   NewTable[database.Profile](db, "id"),
		Projects:   NewTable[database.Project](db, "user_id"),
		Education:  NewTable[database.Education](db, "user_id"),
		Experience: NewTable[database.Experience](db, "user_id"),
		Blogs:      NewTable[database.Blog](db, "user_id"),
	}
}

// Reader 提供看板聚合所需的只读查询。
type Reader struct {
	db     *gorm.DB
	tables Tables
}

// NewReader 构造 Reader。
func NewReader(db *gorm.DB) *Reader {
	return &Reader{db: db, tables: NewTables(db)}
}

func (r *Reader) Projects(ctx context.Context, userID uint, publishedOnly bool) ([]database.Project, error) {
	return r.tables.Projects.List(ctx, userID, ListOptions{Order: "created_at DESC, id DESC", PublishedOnly: publishedOnly})
}

func (r *Reader) Education(ctx context.Context, userID uint) ([]database.Education, error) {
	return r.tables.Education.List(ctx, userID, ListOptions{Order: "start_date DESC, id DESC"})
}

func (r *Reader) Experience(ctx context.Context, userID uint) ([]database.Experience, error) {
	return r.tables.Experience.List(ctx, userID, ListOptions{Order: "start_date DESC, id DESC"})
}

func (r *Reader) Blogs(ctx context.Context, userID uint, publishedOnly bool) ([]database.Blog, error) {
	return r.tables.Blogs.List(ctx, userID, ListOptions{Order: "created_at DESC, id DESC", PublishedOnly: publishedOnly})
}

// Profile 返回用户资料；尚未创建时返回 (nil, nil)。
func (r *Reader) Profile(ctx context.Context, userID uint) (*database.Profile, error) {
	profile, err := r.tables.Profiles.FindByOwner(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// ProfileByUsername 按用户名精确匹配（区分大小写）。
func (r *Reader) ProfileByUsername(ctx context.Context, username string) (*database.Profile, error) {
	var profile database.Profile
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&profile).Error; err != nil {
		return nil, translate(err)
	}
	return &profile, nil
}

// UsernameTaken 判断是否有其他用户占用了该用户名。
func (r *Reader) UsernameTaken(ctx context.Context, username string, excludeUserID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&database.Profile{}).
		Where("username = ? AND id <> ?", username, excludeUserID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
