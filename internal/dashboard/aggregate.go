package dashboard

import (
	"strconv"

	"phFolio/internal/database"
)

// 聚合快照中的分区名，也用于日志与指标标签。
const (
	SectionProjects   = "projects"
	SectionEducation  = "education"
	SectionExperience = "experience"
	SectionBlogs      = "blogs"
	SectionProfile    = "profile"
)

// Aggregate 是一个用户看板所需的全部数据。
// Degraded 列出本次加载中失败并被降级为空值的分区。
type Aggregate struct {
	Projects   []database.Project    `json:"projects"`
	Education  []database.Education  `json:"education"`
	Experience []database.Experience `json:"experience"`
	Blogs      []database.Blog       `json:"blogs"`
	Profile    *database.Profile     `json:"profile"`
	Degraded   []string              `json:"degraded,omitempty"`
}

// PartialResults 是五个子查询各自的结果。
type PartialResults struct {
	Projects   Result[[]database.Project]
	Education  Result[[]database.Education]
	Experience Result[[]database.Experience]
	Blogs      Result[[]database.Blog]
	Profile    Result[*database.Profile]
}

type sectionFailure struct {
	section string
	err     error
}

func (r PartialResults) failures() []sectionFailure {
	var out []sectionFailure
	add := func(section string, err error) {
		if err != nil {
			out = append(out, sectionFailure{section: section, err: err})
		}
	}
	add(SectionProjects, r.Projects.Err)
	add(SectionEducation, r.Education.Err)
	add(SectionExperience, r.Experience.Err)
	add(SectionBlogs, r.Blogs.Err)
	add(SectionProfile, r.Profile.Err)
	return out
}

// MergeAggregate 合并子查询结果：每个分区独立降级，失败的列表为 []，失败的资料为 nil。
func MergeAggregate(results PartialResults) Aggregate {
	agg := Aggregate{
		Projects:   nonNil(results.Projects.OrDefault(nil)),
		Education:  nonNil(results.Education.OrDefault(nil)),
		Experience: nonNil(results.Experience.OrDefault(nil)),
		Blogs:      nonNil(results.Blogs.OrDefault(nil)),
		Profile:    results.Profile.OrDefault(nil),
	}
	for _, failure := range results.failures() {
		agg.Degraded = append(agg.Degraded, failure.section)
	}
	return agg
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// DashboardKey 是已登录用户看板快照的缓存 key。
func DashboardKey(userID uint) string {
	return "dashboard:user:" + strconv.FormatUint(uint64(userID), 10)
}

// PublicKey 是公开作品集快照的缓存 key。
func PublicKey(username string) string {
	return "portfolio:public:" + username
}
