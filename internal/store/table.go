package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Owned 约束表行类型：指针类型必须能接收归属用户。
type Owned[T any] interface {
	*T
	SetOwner(userID uint)
}

// ListOptions 控制集合查询的过滤与排序。
type ListOptions struct {
	Order         string
	PublishedOnly bool
}

// Table 是按用户归属过滤的通用表访问。
// 所有读写都带 ownerColumn 条件，仅凭 id 无法触达他人的记录。
type Table[T any, PT Owned[T]] struct {
	db          *gorm.DB
	ownerColumn string
}

// NewTable 构造 Table。
func NewTable[T any, PT Owned[T]](db *gorm.DB, ownerColumn string) *Table[T, PT] {
	return &Table[T, PT]{db: db, ownerColumn: ownerColumn}
}

// List 返回 owner 名下的全部记录，结果永不为 nil。
func (t *Table[T, PT]) List(ctx context.Context, ownerID uint, opts ListOptions) ([]T, error) {
	query := t.db.WithContext(ctx).Where(t.ownerColumn+" = ?", ownerID)
	if opts.PublishedOnly {
		query = query.Where("published = ?", true)
	}
	if opts.Order != "" {
		query = query.Order(opts.Order)
	}

	rows := make([]T, 0)
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Get 读取 owner 名下指定 id 的记录。
func (t *Table[T, PT]) Get(ctx context.Context, ownerID, id uint) (T, error) {
	var row T
	err := t.db.WithContext(ctx).
		Where("id = ? AND "+t.ownerColumn+" = ?", id, ownerID).
		First(&row).Error
	return row, translate(err)
}

// FindByOwner 读取 owner 的唯一一行（用于一对一的表）。
func (t *Table[T, PT]) FindByOwner(ctx context.Context, ownerID uint) (T, error) {
	var row T
	err := t.db.WithContext(ctx).
		Where(t.ownerColumn+" = ?", ownerID).
		First(&row).Error
	return row, translate(err)
}

// Insert 注入 owner 后写入新行。
func (t *Table[T, PT]) Insert(ctx context.Context, ownerID uint, row *T) error {
	PT(row).SetOwner(ownerID)
	return t.db.WithContext(ctx).Create(row).Error
}

// InsertIgnore 插入新行，冲突时什么也不做；created 表示是否真正写入。
func (t *Table[T, PT]) InsertIgnore(ctx context.Context, ownerID uint, row *T) (bool, error) {
	PT(row).SetOwner(ownerID)
	result := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Update 在事务内读取 owner 的记录，应用 apply 后整行保存。
// apply 返回错误时不写入。
func (t *Table[T, PT]) Update(ctx context.Context, ownerID, id uint, apply func(*T) error) (T, error) {
	var row T
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND "+t.ownerColumn+" = ?", id, ownerID).First(&row).Error; err != nil {
			return translate(err)
		}
		if err := apply(&row); err != nil {
			return err
		}
		PT(&row).SetOwner(ownerID)
		return tx.Save(&row).Error
	})
	return row, err
}

// Upsert 以 owner 为主键插入或更新；已存在时先读出旧行再应用 apply。
func (t *Table[T, PT]) Upsert(ctx context.Context, ownerID uint, apply func(*T) error) (T, error) {
	var row T
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(t.ownerColumn+" = ?", ownerID).First(&row).Error
		exists := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := apply(&row); err != nil {
			return err
		}
		PT(&row).SetOwner(ownerID)
		if exists {
			return tx.Save(&row).Error
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: t.ownerColumn}},
			UpdateAll: true,
		}).Create(&row).Error
	})
	return row, err
}

// Delete 删除 owner 名下的记录；不存在或不属于 owner 时返回 ErrNotFound。
func (t *Table[T, PT]) Delete(ctx context.Context, ownerID, id uint) error {
	result := t.db.WithContext(ctx).
		Where("id = ? AND "+t.ownerColumn+" = ?", id, ownerID).
		Delete(new(T))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
