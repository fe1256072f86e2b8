// Package render 把公开作品集渲染为 HTML，供公开页面与 PDF 导出共用。
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strings"
	"time"

	"gorm.io/datatypes"

	"phFolio/internal/dashboard"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer 持有解析好的全部模板。
type Renderer struct {
	templates map[string]*template.Template
}

var funcs = template.FuncMap{
	"date":      formatDate,
	"datePtr":   formatDatePtr,
	"timePtr":   formatTimePtr,
	"join":      strings.Join,
	"safeHTML":  func(s string) template.HTML { return template.HTML(s) },
}

// New 解析内嵌模板；每个模板与共享的 base.html 组合。
func New() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template)}
	for _, name := range []string{dashboard.TemplateMinimal, dashboard.TemplateModern} {
		tmpl, err := template.New("base.html").Funcs(funcs).ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %q: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// MustNew 在模板解析失败时 panic，模板随二进制内嵌，失败即为构建错误。
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Page 是模板的输入。
type Page struct {
	dashboard.Aggregate
	PublicURL string
	Print     bool
}

// PortfolioURL 返回公开作品集页面的地址。
func PortfolioURL(baseURL, username string) string {
	return strings.TrimRight(baseURL, "/") + "/v1/portfolio/" + url.PathEscape(username) + "/page"
}

// TemplateFor 返回资料选择的模板名，未知模板回退为 minimal。
func TemplateFor(agg dashboard.Aggregate) string {
	if agg.Profile != nil && dashboard.IsKnownTemplate(agg.Profile.SelectedTemplate) {
		return agg.Profile.SelectedTemplate
	}
	return dashboard.TemplateMinimal
}

// Render 把作品集写入 w。
func (r *Renderer) Render(w io.Writer, page Page) error {
	name := TemplateFor(page.Aggregate)
	if err := r.templates[name].ExecuteTemplate(w, "base.html", page); err != nil {
		return fmt.Errorf("execute template %q: %w", name, err)
	}
	return nil
}

// RenderString 渲染为字符串，供 PDF 导出使用。
func (r *Renderer) RenderString(page Page) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, page); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatDate(d datatypes.Date) string {
	t := time.Time(d)
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2006")
}

func formatDatePtr(d *datatypes.Date) string {
	if d == nil {
		return ""
	}
	return formatDate(*d)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2 Jan 2006")
}
