package dashboard

import (
	"errors"
	"reflect"
	"testing"

	"phFolio/internal/database"
)

func TestMergeAggregateDegradesOnlyFailedSection(t *testing.T) {
	boom := errors.New("relation does not exist")
	headline := "hello"
	results := PartialResults{
		Projects:   Ok([]database.Project{{ID: 1, Title: "Demo"}}),
		Education:  Fail[[]database.Education](boom),
		Experience: Ok([]database.Experience{{ID: 2, Company: "Acme"}}),
		Blogs:      Ok([]database.Blog{}),
		Profile:    Ok(&database.Profile{ID: 7, Headline: headline}),
	}

	agg := MergeAggregate(results)

	if len(agg.Projects) != 1 || agg.Projects[0].Title != "Demo" {
		t.Fatalf("projects = %+v", agg.Projects)
	}
	if agg.Education == nil || len(agg.Education) != 0 {
		t.Fatalf("education should degrade to empty list, got %#v", agg.Education)
	}
	if len(agg.Experience) != 1 {
		t.Fatalf("experience = %+v", agg.Experience)
	}
	if agg.Profile == nil || agg.Profile.Headline != headline {
		t.Fatalf("profile = %+v", agg.Profile)
	}
	if !reflect.DeepEqual(agg.Degraded, []string{SectionEducation}) {
		t.Fatalf("degraded = %v", agg.Degraded)
	}
}

func TestMergeAggregateProfileFailureIsNil(t *testing.T) {
	agg := MergeAggregate(PartialResults{
		Profile: Fail[*database.Profile](errors.New("timeout")),
	})
	if agg.Profile != nil {
		t.Fatalf("profile should be nil, got %+v", agg.Profile)
	}
	if agg.Projects == nil || agg.Education == nil || agg.Experience == nil || agg.Blogs == nil {
		t.Fatalf("lists must never be nil: %+v", agg)
	}
	if !reflect.DeepEqual(agg.Degraded, []string{SectionProfile}) {
		t.Fatalf("degraded = %v", agg.Degraded)
	}
}

func TestMergeAggregateAllOK(t *testing.T) {
	agg := MergeAggregate(PartialResults{})
	if len(agg.Degraded) != 0 {
		t.Fatalf("degraded = %v", agg.Degraded)
	}
}

func TestCacheKeys(t *testing.T) {
	if got := DashboardKey(42); got != "dashboard:user:42" {
		t.Fatalf("DashboardKey = %q", got)
	}
	if got := PublicKey("ada"); got != "portfolio:public:ada" {
		t.Fatalf("PublicKey = %q", got)
	}
}
