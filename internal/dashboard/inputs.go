package dashboard

import (
	"bytes"
	"encoding/json"
	"strings"

	"gorm.io/datatypes"

	"phFolio/internal/database"
)

// Patch 是实体写操作的输入：指针字段为 nil 表示保持原值。
// 输入里不存在 user_id，归属只由会话决定。
type Patch[T any] interface {
	Validate() error
	Apply(row *T) error
}

// 可选的作品集模板。
const (
	TemplateMinimal = "minimal"
	TemplateModern  = "modern"
)

// IsKnownTemplate 报告模板名是否受支持。
func IsKnownTemplate(name string) bool {
	switch name {
	case TemplateMinimal, TemplateModern:
		return true
	default:
		return false
	}
}

// Technologies 兼容两种写法：JSON 数组，或表单里的逗号分隔文本。
type Technologies []string

func (t *Technologies) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*t = ParseTechnologies(raw)
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*t = cleanList(items)
	return nil
}

// ParseTechnologies 按逗号切分并去掉空白项，保持原有顺序。
func ParseTechnologies(raw string) []string {
	return cleanList(strings.Split(raw, ","))
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

// ProjectInput 是项目的创建/更新输入。
type ProjectInput struct {
	Title        *string       `json:"title"`
	Description  *string       `json:"description"`
	ImageURL     *string       `json:"image_url"`
	ProjectURL   *string       `json:"project_url"`
	GithubURL    *string       `json:"github_url"`
	Technologies *Technologies `json:"technologies"`
	Published    *bool         `json:"published"`
}

func (in ProjectInput) Validate() error {
	return requireNonBlank("title", in.Title)
}

func (in ProjectInput) Apply(p *database.Project) error {
	setTrimmed(&p.Title, in.Title)
	setTrimmed(&p.Description, in.Description)
	setTrimmed(&p.ImageURL, in.ImageURL)
	setTrimmed(&p.ProjectURL, in.ProjectURL)
	setTrimmed(&p.GithubURL, in.GithubURL)
	if in.Technologies != nil {
		p.Technologies = datatypes.JSONSlice[string](cleanList(*in.Technologies))
	}
	if p.Technologies == nil {
		p.Technologies = datatypes.JSONSlice[string]{}
	}
	if in.Published != nil {
		p.Published = *in.Published
	} else if p.ID == 0 {
		p.Published = true
	}
	return nil
}

// EducationInput 是教育经历的输入；日期为 YYYY-MM-DD，EndDate 传空串表示清空。
type EducationInput struct {
	Institution      *string `json:"institution"`
	Degree           *string `json:"degree"`
	FieldOfStudy     *string `json:"field_of_study"`
	StartDate        *string `json:"start_date"`
	EndDate          *string `json:"end_date"`
	CurrentEducation *bool   `json:"current_education"`
	Description      *string `json:"description"`
}

func (in EducationInput) Validate() error {
	if err := requireNonBlank("institution", in.Institution); err != nil {
		return err
	}
	if err := requireNonBlank("degree", in.Degree); err != nil {
		return err
	}
	_, _, err := parseDateRange(in.StartDate, in.EndDate)
	return err
}

func (in EducationInput) Apply(e *database.Education) error {
	start, end, err := parseDateRange(in.StartDate, in.EndDate)
	if err != nil {
		return err
	}
	setTrimmed(&e.Institution, in.Institution)
	setTrimmed(&e.Degree, in.Degree)
	setTrimmed(&e.FieldOfStudy, in.FieldOfStudy)
	setTrimmed(&e.Description, in.Description)
	if start != nil {
		e.StartDate = *start
	}
	if in.EndDate != nil {
		e.EndDate = end
	}
	if in.CurrentEducation != nil {
		e.CurrentEducation = *in.CurrentEducation
	}
	return nil
}

// ExperienceInput 是工作经历的输入。
type ExperienceInput struct {
	Company     *string `json:"company"`
	Position    *string `json:"position"`
	Location    *string `json:"location"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
	CurrentJob  *bool   `json:"current_job"`
	Description *string `json:"description"`
}

func (in ExperienceInput) Validate() error {
	if err := requireNonBlank("company", in.Company); err != nil {
		return err
	}
	if err := requireNonBlank("position", in.Position); err != nil {
		return err
	}
	_, _, err := parseDateRange(in.StartDate, in.EndDate)
	return err
}

func (in ExperienceInput) Apply(e *database.Experience) error {
	start, end, err := parseDateRange(in.StartDate, in.EndDate)
	if err != nil {
		return err
	}
	setTrimmed(&e.Company, in.Company)
	setTrimmed(&e.Position, in.Position)
	setTrimmed(&e.Location, in.Location)
	setTrimmed(&e.Description, in.Description)
	if start != nil {
		e.StartDate = *start
	}
	if in.EndDate != nil {
		e.EndDate = end
	}
	if in.CurrentJob != nil {
		e.CurrentJob = *in.CurrentJob
	}
	return nil
}

func parseDateRange(start, end *string) (*datatypes.Date, *datatypes.Date, error) {
	var startDate, endDate *datatypes.Date
	if start != nil && strings.TrimSpace(*start) != "" {
		d, err := parseDate("start_date", *start)
		if err != nil {
			return nil, nil, err
		}
		startDate = &d
	}
	if end != nil && strings.TrimSpace(*end) != "" {
		d, err := parseDate("end_date", *end)
		if err != nil {
			return nil, nil, err
		}
		endDate = &d
	}
	return startDate, endDate, nil
}

// BlogInput 是博客的输入；正文会经过 HTML 清洗，slug 由标题派生。
type BlogInput struct {
	Title     *string `json:"title"`
	Excerpt   *string `json:"excerpt"`
	Content   *string `json:"content"`
	Published *bool   `json:"published"`
}

func (in BlogInput) Validate() error {
	if err := requireNonBlank("title", in.Title); err != nil {
		return err
	}
	return requireNonBlank("content", in.Content)
}

func (in BlogInput) Apply(b *database.Blog) error {
	setTrimmed(&b.Title, in.Title)
	if in.Excerpt != nil {
		b.Excerpt = sanitizePlainText(*in.Excerpt)
	}
	if in.Content != nil {
		b.Content = sanitizeRichText(*in.Content)
	}
	if in.Published != nil {
		b.Published = *in.Published
	}
	return nil
}

// ProfileInput 是资料的 upsert 输入；Username 传空串表示清除用户名。
type ProfileInput struct {
	FullName         *string `json:"full_name"`
	Username         *string `json:"username"`
	Headline         *string `json:"headline"`
	Bio              *string `json:"bio"`
	Location         *string `json:"location"`
	Website          *string `json:"website"`
	Github           *string `json:"github"`
	Linkedin         *string `json:"linkedin"`
	Twitter          *string `json:"twitter"`
	AvatarURL        *string `json:"avatar_url"`
	SelectedTemplate *string `json:"selected_template"`
}

func (in ProfileInput) Validate() error {
	if in.Username != nil && *in.Username != "" {
		if err := ValidateUsernameFormat(*in.Username); err != nil {
			return err
		}
	}
	if in.SelectedTemplate != nil && !IsKnownTemplate(*in.SelectedTemplate) {
		return invalid("selected_template", "unknown template")
	}
	return nil
}

func (in ProfileInput) Apply(p *database.Profile) error {
	setTrimmed(&p.FullName, in.FullName)
	setTrimmed(&p.Headline, in.Headline)
	setTrimmed(&p.Location, in.Location)
	setTrimmed(&p.Website, in.Website)
	setTrimmed(&p.Github, in.Github)
	setTrimmed(&p.Linkedin, in.Linkedin)
	setTrimmed(&p.Twitter, in.Twitter)
	setTrimmed(&p.AvatarURL, in.AvatarURL)
	if in.Bio != nil {
		p.Bio = sanitizePlainText(*in.Bio)
	}
	if in.Username != nil {
		if *in.Username == "" {
			p.Username = nil
		} else {
			username := *in.Username
			p.Username = &username
		}
	}
	if in.SelectedTemplate != nil {
		p.SelectedTemplate = *in.SelectedTemplate
	}
	if p.SelectedTemplate == "" {
		p.SelectedTemplate = TemplateMinimal
	}
	return nil
}
