package database

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Username           string `gorm:"uniqueIndex;size:64"`
	PasswordHash       string `gorm:"size:255"`
	MustChangePassword bool   `gorm:"default:false"`
}

// Profile 与 User 一对一，主键即用户 ID。
// Username 可为空：首次访问看板时懒创建的资料还没有用户名。
type Profile struct {
	ID               uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	FullName         string    `gorm:"size:255" json:"full_name"`
	Username         *string   `gorm:"uniqueIndex;size:30" json:"username"`
	Headline         string    `gorm:"size:255" json:"headline"`
	Bio              string    `gorm:"type:text" json:"bio"`
	Location         string    `gorm:"size:255" json:"location"`
	Website          string    `gorm:"size:512" json:"website"`
	Github           string    `gorm:"size:512" json:"github"`
	Linkedin         string    `gorm:"size:512" json:"linkedin"`
	Twitter          string    `gorm:"size:512" json:"twitter"`
	AvatarURL        string    `gorm:"size:1024" json:"avatar_url"`
	SelectedTemplate string    `gorm:"size:32;default:minimal" json:"selected_template"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// UsernameOrEmpty 返回用户名，未设置时为空串。
func (p *Profile) UsernameOrEmpty() string {
	if p == nil || p.Username == nil {
		return ""
	}
	return *p.Username
}

// Project 表示作品集中的一个项目。
type Project struct {
	ID           uint                        `gorm:"primaryKey" json:"id"`
	UserID       uint                        `gorm:"index;not null" json:"user_id"`
	Title        string                      `gorm:"size:255;not null" json:"title" validate:"required,max=255"`
	Description  string                      `gorm:"type:text" json:"description"`
	ImageURL     string                      `gorm:"size:1024" json:"image_url" validate:"omitempty,url"`
	ProjectURL   string                      `gorm:"size:1024" json:"project_url" validate:"omitempty,url"`
	GithubURL    string                      `gorm:"size:1024" json:"github_url" validate:"omitempty,url"`
	Technologies datatypes.JSONSlice[string] `json:"technologies"`
	Published    bool                        `gorm:"not null" json:"published"`
	CreatedAt    time.Time                   `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

// Education 表示教育经历。
type Education struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	UserID           uint            `gorm:"index;not null" json:"user_id"`
	Institution      string          `gorm:"size:255;not null" json:"institution" validate:"required,max=255"`
	Degree           string          `gorm:"size:255;not null" json:"degree" validate:"required,max=255"`
	FieldOfStudy     string          `gorm:"size:255" json:"field_of_study"`
	StartDate        datatypes.Date  `json:"start_date"`
	EndDate          *datatypes.Date `json:"end_date"`
	CurrentEducation bool            `gorm:"default:false" json:"current_education"`
	Description      string          `gorm:"type:text" json:"description"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// BeforeSave 保证“在读”时不保留结束日期，所有写入路径都会经过这里。
func (e *Education) BeforeSave(*gorm.DB) error {
	if e.CurrentEducation {
		e.EndDate = nil
	}
	return nil
}

// Experience 表示工作经历。
type Experience struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      uint            `gorm:"index;not null" json:"user_id"`
	Company     string          `gorm:"size:255;not null" json:"company" validate:"required,max=255"`
	Position    string          `gorm:"size:255;not null" json:"position" validate:"required,max=255"`
	Location    string          `gorm:"size:255" json:"location"`
	StartDate   datatypes.Date  `json:"start_date"`
	EndDate     *datatypes.Date `json:"end_date"`
	CurrentJob  bool            `gorm:"default:false" json:"current_job"`
	Description string          `gorm:"type:text" json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// BeforeSave 保证在职经历不保留结束日期。
func (e *Experience) BeforeSave(*gorm.DB) error {
	if e.CurrentJob {
		e.EndDate = nil
	}
	return nil
}

// Blog 表示一篇博客文章。
type Blog struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"index;not null" json:"user_id"`
	Title       string     `gorm:"size:255;not null" json:"title" validate:"required,max=255"`
	Slug        string     `gorm:"size:255;index" json:"slug"`
	Excerpt     string     `gorm:"type:text" json:"excerpt"`
	Content     string     `gorm:"type:text;not null" json:"content" validate:"required"`
	Published   bool       `gorm:"default:false" json:"published"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BeforeSave 由标题派生 slug，并维护发布时间。
// 标题派生不出 slug 时退回到基于 id 的 slug。
func (b *Blog) BeforeSave(*gorm.DB) error {
	b.Slug = Slugify(b.Title)
	if b.Slug == "" && b.ID != 0 {
		b.Slug = fallbackSlug(b.ID)
	}
	switch {
	case b.Published && b.PublishedAt == nil:
		now := time.Now()
		b.PublishedAt = &now
	case !b.Published:
		b.PublishedAt = nil
	}
	return nil
}

// AfterCreate 为新插入且没有 slug 的文章补上基于 id 的 slug。
func (b *Blog) AfterCreate(tx *gorm.DB) error {
	if b.Slug != "" {
		return nil
	}
	b.Slug = fallbackSlug(b.ID)
	return tx.Model(b).UpdateColumn("slug", b.Slug).Error
}

func fallbackSlug(id uint) string {
	return "post-" + strconv.FormatUint(uint64(id), 10)
}

// SetOwner 由存储层在写入前注入归属用户，调用方传入的值一律被覆盖。
func (p *Profile) SetOwner(userID uint)    { p.ID = userID }
func (p *Project) SetOwner(userID uint)    { p.UserID = userID }
func (e *Education) SetOwner(userID uint)  { e.UserID = userID }
func (e *Experience) SetOwner(userID uint) { e.UserID = userID }
func (b *Blog) SetOwner(userID uint)       { b.UserID = userID }
