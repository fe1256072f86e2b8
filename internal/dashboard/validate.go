package dashboard

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/datatypes"

	"phFolio/internal/database"
)

var (
	structValidator = newStructValidator()

	// 博客正文允许常见富文本标签，摘要与简介只保留纯文本。
	richTextPolicy  = bluemonday.UGCPolicy()
	plainTextPolicy = bluemonday.StrictPolicy()
)

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct 把 validator 的第一个字段错误转换成 ValidationError。
func validateStruct(value any) error {
	err := structValidator.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalid("", err.Error())
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return invalid(fe.Field(), "is required")
	case "max":
		return invalid(fe.Field(), fmt.Sprintf("must be at most %s characters", fe.Param()))
	case "url":
		return invalid(fe.Field(), "must be a valid url")
	default:
		return invalid(fe.Field(), fmt.Sprintf("failed %q validation", fe.Tag()))
	}
}

func validateProject(p *database.Project) error {
	return validateStruct(p)
}

func validateEducation(e *database.Education) error {
	if err := validateStruct(e); err != nil {
		return err
	}
	return checkDateRange(e.StartDate, e.EndDate, e.CurrentEducation)
}

func validateExperience(e *database.Experience) error {
	if err := validateStruct(e); err != nil {
		return err
	}
	return checkDateRange(e.StartDate, e.EndDate, e.CurrentJob)
}

func validateBlog(b *database.Blog) error {
	return validateStruct(b)
}

func validateProfile(p *database.Profile) error {
	if p.Username != nil {
		if err := ValidateUsernameFormat(*p.Username); err != nil {
			return err
		}
	}
	if !IsKnownTemplate(p.SelectedTemplate) {
		return invalid("selected_template", "unknown template")
	}
	return nil
}

// checkDateRange 只在非“当前”记录且两端都有值时比较先后。
func checkDateRange(start datatypes.Date, end *datatypes.Date, current bool) error {
	if current || end == nil {
		return nil
	}
	startTime := time.Time(start)
	if startTime.IsZero() {
		return nil
	}
	if time.Time(*end).Before(startTime) {
		return invalid("end_date", "must not be before start_date")
	}
	return nil
}

func requireNonBlank(field string, value *string) error {
	if value != nil && strings.TrimSpace(*value) == "" {
		return invalid(field, "is required")
	}
	return nil
}

// parseDate 接受 2006-01-02 或 RFC3339。
func parseDate(field, raw string) (datatypes.Date, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return datatypes.Date(t), nil
		}
	}
	return datatypes.Date{}, invalid(field, "must be a date (YYYY-MM-DD)")
}

func sanitizeRichText(s string) string {
	return strings.TrimSpace(richTextPolicy.Sanitize(s))
}

func sanitizePlainText(s string) string {
	return strings.TrimSpace(plainTextPolicy.Sanitize(s))
}
