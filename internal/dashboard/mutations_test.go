package dashboard

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"phFolio/internal/cache"
	"phFolio/internal/database"
	"phFolio/internal/notify"
	"phFolio/internal/store"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type recordingPublisher struct {
	messages []notify.Message
}

func (p *recordingPublisher) Publish(_ context.Context, _ uint, msg notify.Message) error {
	p.messages = append(p.messages, msg)
	return nil
}

type testEnv struct {
	db        *gorm.DB
	loader    *Loader
	memory    *cache.Memory[Aggregate]
	coord     *Coordinator
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	reader := store.NewReader(db)
	memory := cache.NewMemory[Aggregate](time.Minute)
	loader := NewLoader(reader, memory, DefaultLoaderOptions(), nil)
	publisher := &recordingPublisher{}
	coord := NewCoordinator(store.NewTables(db), loader, NewUsernameChecker(reader, nil), publisher, nil)
	return &testEnv{db: db, loader: loader, memory: memory, coord: coord, publisher: publisher}
}

func ptr[T any](v T) *T { return &v }

func TestCreateProjectVisibleInNextRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const userA = 11

	before, err := env.loader.Dashboard(ctx, userA)
	if err != nil {
		t.Fatal(err)
	}
	if len(before.Projects) != 0 {
		t.Fatalf("projects = %+v", before.Projects)
	}

	if _, err := env.coord.Projects.Create(ctx, userA, ProjectInput{Title: ptr("Demo")}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	agg, err := env.loader.Dashboard(ctx, userA)
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.Projects) != 1 {
		t.Fatalf("projects = %+v", agg.Projects)
	}
	if got := agg.Projects[0]; got.Title != "Demo" || got.UserID != userA || !got.Published {
		t.Fatalf("project = %+v", got)
	}
	if len(env.publisher.messages) != 1 || env.publisher.messages[0].Type != notify.TypeDashboardInvalidated {
		t.Fatalf("messages = %+v", env.publisher.messages)
	}
}

func TestCreateRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.coord.Projects.Create(context.Background(), 0, ProjectInput{Title: ptr("Demo")}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateValidationBlocksWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		run   func() error
		field string
	}{
		{"project without title", func() error {
			_, err := env.coord.Projects.Create(ctx, 1, ProjectInput{Description: ptr("x")})
			return err
		}, "title"},
		{"project blank title", func() error {
			_, err := env.coord.Projects.Create(ctx, 1, ProjectInput{Title: ptr("   ")})
			return err
		}, "title"},
		{"project bad url", func() error {
			_, err := env.coord.Projects.Create(ctx, 1, ProjectInput{Title: ptr("A"), ProjectURL: ptr("not a url")})
			return err
		}, "project_url"},
		{"education without degree", func() error {
			_, err := env.coord.Education.Create(ctx, 1, EducationInput{Institution: ptr("MIT")})
			return err
		}, "degree"},
		{"experience without company", func() error {
			_, err := env.coord.Experience.Create(ctx, 1, ExperienceInput{Position: ptr("Dev")})
			return err
		}, "company"},
		{"blog without content", func() error {
			_, err := env.coord.Blogs.Create(ctx, 1, BlogInput{Title: ptr("Hello")})
			return err
		}, "content"},
		{"education bad date", func() error {
			_, err := env.coord.Education.Create(ctx, 1, EducationInput{Institution: ptr("MIT"), Degree: ptr("BSc"), StartDate: ptr("yesterday")})
			return err
		}, "start_date"},
		{"experience end before start", func() error {
			_, err := env.coord.Experience.Create(ctx, 1, ExperienceInput{
				Company: ptr("Acme"), Position: ptr("Dev"),
				StartDate: ptr("2022-01-01"), EndDate: ptr("2021-01-01"),
			})
			return err
		}, "end_date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field = %q, want %q", verr.Field, tc.field)
			}
		})
	}

	for _, model := range []any{&database.Project{}, &database.Education{}, &database.Experience{}, &database.Blog{}} {
		var count int64
		env.db.Model(model).Count(&count)
		if count != 0 {
			t.Fatalf("%T rows = %d, validation must block the write", model, count)
		}
	}
	if len(env.publisher.messages) != 0 {
		t.Fatalf("failed mutations must not signal invalidation")
	}
}

func TestCreateValidationFailureReturnsZeroValue(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.coord.Experience.Create(context.Background(), 1, ExperienceInput{
		Company: ptr("Acme"), Position: ptr("Dev"),
		StartDate: ptr("2022-01-01"), EndDate: ptr("2021-01-01"),
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if job.Company != "" || job.Position != "" || job.UserID != 0 {
		t.Fatalf("failed create returned %+v, want zero value", job)
	}
}

func TestUpdateIsOwnerScoped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	project, err := env.coord.Projects.Create(ctx, 1, ProjectInput{Title: ptr("Mine")})
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.coord.Projects.Update(ctx, 2, project.ID, ProjectInput{Title: ptr("Stolen")})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	var merr *MutationError
	if !errors.As(err, &merr) || merr.Op != OpUpdate {
		t.Fatalf("err = %#v, want MutationError", err)
	}
	if err := env.coord.Projects.Delete(ctx, 2, project.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("delete err = %v", err)
	}

	var stored database.Project
	if err := env.db.First(&stored, project.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.Title != "Mine" || stored.UserID != 1 {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	project, err := env.coord.Projects.Create(ctx, 1, ProjectInput{Title: ptr("A"), Technologies: ptr(Technologies{"go"})})
	if err != nil {
		t.Fatal(err)
	}
	patch := ProjectInput{Title: ptr("B"), Technologies: ptr(Technologies{"go", "sql"})}

	first, err := env.coord.Projects.Update(ctx, 1, project.ID, patch)
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.coord.Projects.Update(ctx, 1, project.ID, patch)
	if err != nil {
		t.Fatal(err)
	}
	if first.Title != second.Title || strings.Join(first.Technologies, ",") != strings.Join(second.Technologies, ",") {
		t.Fatalf("first = %+v, second = %+v", first, second)
	}
	if strings.Join(second.Technologies, ",") != "go,sql" {
		t.Fatalf("technologies = %v", second.Technologies)
	}

	var count int64
	env.db.Model(&database.Project{}).Count(&count)
	if count != 1 {
		t.Fatalf("rows = %d", count)
	}
}

func TestUpdatePartialKeepsOtherFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	project, err := env.coord.Projects.Create(ctx, 1, ProjectInput{Title: ptr("A"), Description: ptr("keep me")})
	if err != nil {
		t.Fatal(err)
	}
	updated, err := env.coord.Projects.Update(ctx, 1, project.ID, ProjectInput{Published: ptr(false)})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Description != "keep me" || updated.Title != "A" || updated.Published {
		t.Fatalf("updated = %+v", updated)
	}
}

func TestMutationRefreshesCachedAggregate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	project, err := env.coord.Projects.Create(ctx, 1, ProjectInput{Title: ptr("Old")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.loader.Dashboard(ctx, 1); err != nil {
		t.Fatal(err)
	}

	if _, err := env.coord.Projects.Update(ctx, 1, project.ID, ProjectInput{Title: ptr("New")}); err != nil {
		t.Fatal(err)
	}
	agg, err := env.loader.Dashboard(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if agg.Projects[0].Title != "New" {
		t.Fatalf("stale cache: %+v", agg.Projects)
	}

	if err := env.coord.Projects.Delete(ctx, 1, project.ID); err != nil {
		t.Fatal(err)
	}
	agg, err = env.loader.Dashboard(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.Projects) != 0 {
		t.Fatalf("deleted project still cached: %+v", agg.Projects)
	}
}

func TestCurrentFlagClearsEndDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	edu, err := env.coord.Education.Create(ctx, 1, EducationInput{
		Institution: ptr("MIT"), Degree: ptr("BSc"),
		StartDate: ptr("2020-09-01"), EndDate: ptr("2024-06-01"),
		CurrentEducation: ptr(true),
	})
	if err != nil {
		t.Fatal(err)
	}
	if edu.EndDate != nil {
		t.Fatalf("end date = %v, want nil", edu.EndDate)
	}

	job, err := env.coord.Experience.Create(ctx, 1, ExperienceInput{
		Company: ptr("Acme"), Position: ptr("Dev"),
		StartDate: ptr("2021-01-01"), EndDate: ptr("2022-01-01"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if job.EndDate == nil {
		t.Fatalf("end date should be kept for a finished job")
	}
	job, err = env.coord.Experience.Update(ctx, 1, job.ID, ExperienceInput{CurrentJob: ptr(true), EndDate: ptr("2023-01-01")})
	if err != nil {
		t.Fatal(err)
	}

	var stored database.Experience
	if err := env.db.First(&stored, job.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.EndDate != nil || !stored.CurrentJob {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestBlogSlugAndPublishTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	blog, err := env.coord.Blogs.Create(ctx, 1, BlogInput{
		Title:   ptr("Hello, World  2024!"),
		Content: ptr(`<p>hi</p><script>alert(1)</script>`),
		Excerpt: ptr("<b>short</b>"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if blog.Slug != "hello-world-2024" {
		t.Fatalf("slug = %q", blog.Slug)
	}
	if strings.Contains(blog.Content, "script") || !strings.Contains(blog.Content, "<p>hi</p>") {
		t.Fatalf("content = %q", blog.Content)
	}
	if blog.Excerpt != "short" {
		t.Fatalf("excerpt = %q", blog.Excerpt)
	}
	if blog.PublishedAt != nil {
		t.Fatalf("draft must not have published_at")
	}

	blog, err = env.coord.Blogs.Update(ctx, 1, blog.ID, BlogInput{Published: ptr(true)})
	if err != nil {
		t.Fatal(err)
	}
	if blog.PublishedAt == nil {
		t.Fatalf("published blog needs published_at")
	}
	blog, err = env.coord.Blogs.Update(ctx, 1, blog.ID, BlogInput{Published: ptr(false)})
	if err != nil {
		t.Fatal(err)
	}
	if blog.PublishedAt != nil {
		t.Fatalf("unpublished blog keeps published_at %v", blog.PublishedAt)
	}
}

func TestBlogTitleWithoutASCIISlugFallsBackToID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	blog, err := env.coord.Blogs.Create(ctx, 7, BlogInput{Title: ptr("日本語のブログ"), Content: ptr("body")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := "post-" + strconv.FormatUint(uint64(blog.ID), 10)
	if blog.Slug != want {
		t.Fatalf("slug = %q, want %q", blog.Slug, want)
	}
	var stored database.Blog
	if err := env.db.First(&stored, blog.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.Slug != want || stored.Title != "日本語のブログ" {
		t.Fatalf("stored = %+v", stored)
	}

	blog, err = env.coord.Blogs.Update(ctx, 7, blog.ID, BlogInput{Title: ptr("Tokyo Notes")})
	if err != nil {
		t.Fatal(err)
	}
	if blog.Slug != "tokyo-notes" {
		t.Fatalf("slug = %q", blog.Slug)
	}
	blog, err = env.coord.Blogs.Update(ctx, 7, blog.ID, BlogInput{Title: ptr("東京")})
	if err != nil {
		t.Fatal(err)
	}
	if blog.Slug != want {
		t.Fatalf("slug = %q, want %q", blog.Slug, want)
	}
}

func TestEnsureProfileIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := env.coord.Profiles.Ensure(ctx, 5); err != nil {
			t.Fatalf("Ensure #%d: %v", i, err)
		}
	}
	var count int64
	env.db.Model(&database.Profile{}).Where("id = ?", 5).Count(&count)
	if count != 1 {
		t.Fatalf("profiles = %d", count)
	}
	if err := env.coord.Profiles.Ensure(ctx, 0); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v", err)
	}
}

func TestProfileRapidUpdatesLastWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.loader.Dashboard(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := env.coord.Profiles.Upsert(ctx, 1, ProfileInput{Headline: ptr("X")}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.coord.Profiles.Upsert(ctx, 1, ProfileInput{Headline: ptr("Y")}); err != nil {
		t.Fatal(err)
	}

	cached, ok, err := env.memory.Get(ctx, DashboardKey(1))
	if err != nil || !ok {
		t.Fatalf("profile upsert should patch the cached snapshot, ok=%v err=%v", ok, err)
	}
	if cached.Profile == nil || cached.Profile.Headline != "Y" {
		t.Fatalf("cached profile = %+v", cached.Profile)
	}
	if cached.Profile.SelectedTemplate != TemplateMinimal {
		t.Fatalf("template = %q", cached.Profile.SelectedTemplate)
	}
}

// deferredPatches 推迟指定 headline 的缓存修补，模拟并发写入的修补乱序到达。
type deferredPatches struct {
	*Loader
	hold    string
	pending []database.Profile
}

func (d *deferredPatches) PatchProfile(ctx context.Context, userID uint, profile database.Profile) {
	if profile.Headline == d.hold {
		d.pending = append(d.pending, profile)
		return
	}
	d.Loader.PatchProfile(ctx, userID, profile)
}

func TestProfileLateStalePatchLosesToNewerWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deferred := &deferredPatches{Loader: env.loader, hold: "X"}
	profiles := NewProfileMutations(store.NewTables(env.db).Profiles, deferred, NewUsernameChecker(store.NewReader(env.db), nil), nil, nil)

	if _, err := env.loader.Dashboard(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := profiles.Upsert(ctx, 1, ProfileInput{Headline: ptr("X")}); err != nil {
		t.Fatal(err)
	}
	if _, err := profiles.Upsert(ctx, 1, ProfileInput{Headline: ptr("Y")}); err != nil {
		t.Fatal(err)
	}
	for _, p := range deferred.pending {
		env.loader.PatchProfile(ctx, 1, p)
	}

	var stored database.Profile
	if err := env.db.First(&stored, 1).Error; err != nil {
		t.Fatal(err)
	}
	cached, ok, err := env.memory.Get(ctx, DashboardKey(1))
	if err != nil || !ok {
		t.Fatalf("snapshot missing, ok=%v err=%v", ok, err)
	}
	if stored.Headline != "Y" || cached.Profile == nil || cached.Profile.Headline != "Y" {
		t.Fatalf("db headline=%q cached=%+v, want Y for both", stored.Headline, cached.Profile)
	}
}

func TestProfileUsernameUniqueness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.coord.Profiles.Upsert(ctx, 1, ProfileInput{Username: ptr("ada")}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.coord.Profiles.Upsert(ctx, 2, ProfileInput{Username: ptr("ada")}); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("err = %v, want ErrUsernameTaken", err)
	}
	// 自己的用户名重复提交不算冲突。
	if _, err := env.coord.Profiles.Upsert(ctx, 1, ProfileInput{Username: ptr("ada"), Headline: ptr("hi")}); err != nil {
		t.Fatalf("self update: %v", err)
	}
	// 区分大小写。
	if _, err := env.coord.Profiles.Upsert(ctx, 2, ProfileInput{Username: ptr("Ada")}); err != nil {
		t.Fatalf("case-different username: %v", err)
	}

	_, err := env.coord.Profiles.Upsert(ctx, 3, ProfileInput{Username: ptr("ab")})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "username" {
		t.Fatalf("err = %v", err)
	}
	_, err = env.coord.Profiles.Upsert(ctx, 3, ProfileInput{SelectedTemplate: ptr("fancy")})
	if !errors.As(err, &verr) || verr.Field != "selected_template" {
		t.Fatalf("err = %v", err)
	}
}

func TestProfileUsernameChangeDropsOldPublicSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.coord.Profiles.Upsert(ctx, 1, ProfileInput{Username: ptr("ada")}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.loader.Public(ctx, "ada"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.coord.Profiles.Upsert(ctx, 1, ProfileInput{Username: ptr("lovelace")}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.loader.Public(ctx, "ada"); !errors.Is(err, ErrPortfolioNotFound) {
		t.Fatalf("old username still served: %v", err)
	}
	agg, err := env.loader.Public(ctx, "lovelace")
	if err != nil {
		t.Fatal(err)
	}
	if agg.Profile == nil || agg.Profile.ID != 1 {
		t.Fatalf("profile = %+v", agg.Profile)
	}

	if _, err := env.coord.Profiles.Upsert(ctx, 1, ProfileInput{Username: ptr("")}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.loader.Public(ctx, "lovelace"); !errors.Is(err, ErrPortfolioNotFound) {
		t.Fatalf("cleared username still served: %v", err)
	}
}

func TestPublicPortfolioShowsPublishedOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.coord.Profiles.Upsert(ctx, 1, ProfileInput{Username: ptr("ada")}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.coord.Projects.Create(ctx, 1, ProjectInput{Title: ptr("Shown")}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.coord.Projects.Create(ctx, 1, ProjectInput{Title: ptr("Hidden"), Published: ptr(false)}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.coord.Blogs.Create(ctx, 1, BlogInput{Title: ptr("Draft"), Content: ptr("wip")}); err != nil {
		t.Fatal(err)
	}

	agg, err := env.loader.Public(ctx, "ada")
	if err != nil {
		t.Fatalf("Public: %v", err)
	}
	if len(agg.Projects) != 1 || agg.Projects[0].Title != "Shown" {
		t.Fatalf("projects = %+v", agg.Projects)
	}
	if agg.Blogs == nil || len(agg.Blogs) != 0 {
		t.Fatalf("blogs = %#v, want []", agg.Blogs)
	}

	dash, err := env.loader.Dashboard(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(dash.Projects) != 2 || len(dash.Blogs) != 1 {
		t.Fatalf("dashboard must include drafts: %d projects, %d blogs", len(dash.Projects), len(dash.Blogs))
	}
}

func TestDashboardOrdering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, start := range []string{"2018-09-01", "2022-09-01", "2020-09-01"} {
		if _, err := env.coord.Education.Create(ctx, 1, EducationInput{
			Institution: ptr("U " + start), Degree: ptr("BSc"), StartDate: ptr(start),
		}); err != nil {
			t.Fatal(err)
		}
	}
	for _, title := range []string{"first", "second", "third"} {
		if _, err := env.coord.Projects.Create(ctx, 1, ProjectInput{Title: ptr(title)}); err != nil {
			t.Fatal(err)
		}
	}

	agg, err := env.loader.Dashboard(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	var starts []string
	for _, e := range agg.Education {
		starts = append(starts, time.Time(e.StartDate).Format(time.DateOnly))
	}
	if strings.Join(starts, ",") != "2022-09-01,2020-09-01,2018-09-01" {
		t.Fatalf("education order = %v", starts)
	}
	if agg.Projects[0].Title != "third" {
		t.Fatalf("newest project first, got %q", agg.Projects[0].Title)
	}
}
