package render

import (
	"strings"
	"testing"
	"time"

	"gorm.io/datatypes"

	"phFolio/internal/dashboard"
	"phFolio/internal/database"
)

func sampleAggregate(template string) dashboard.Aggregate {
	username := "ada"
	start := datatypes.Date(time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC))
	return dashboard.Aggregate{
		Profile: &database.Profile{ID: 1, Username: &username, FullName: "Ada Lovelace", Headline: "Engineer", SelectedTemplate: template},
		Projects: []database.Project{{
			ID: 1, Title: "Analytical <Engine>", Technologies: datatypes.JSONSlice[string]{"go", "sql"},
		}},
		Education:  []database.Education{{ID: 1, Institution: "MIT", Degree: "BSc", StartDate: start, CurrentEducation: true}},
		Experience: []database.Experience{},
		Blogs:      []database.Blog{},
	}
}

func TestRenderSelectedTemplate(t *testing.T) {
	r := MustNew()

	for _, name := range []string{dashboard.TemplateMinimal, dashboard.TemplateModern} {
		html, err := r.RenderString(Page{Aggregate: sampleAggregate(name)})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !strings.Contains(html, "Ada Lovelace") || !strings.Contains(html, "Sep 2020") {
			t.Fatalf("%s: missing content:\n%s", name, html)
		}
		if strings.Contains(html, "Analytical <Engine>") {
			t.Fatalf("%s: project title must be escaped", name)
		}
	}
}

func TestTemplateFallback(t *testing.T) {
	if got := TemplateFor(sampleAggregate("retro")); got != dashboard.TemplateMinimal {
		t.Fatalf("TemplateFor(unknown) = %q", got)
	}
	if got := TemplateFor(dashboard.Aggregate{}); got != dashboard.TemplateMinimal {
		t.Fatalf("TemplateFor(no profile) = %q", got)
	}
	if got := TemplateFor(sampleAggregate(dashboard.TemplateModern)); got != dashboard.TemplateModern {
		t.Fatalf("TemplateFor(modern) = %q", got)
	}
}

func TestRenderPrintMode(t *testing.T) {
	html, err := MustNew().RenderString(Page{Aggregate: sampleAggregate("minimal"), Print: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "size: A4") {
		t.Fatalf("print css missing")
	}
}
