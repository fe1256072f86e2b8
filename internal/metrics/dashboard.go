package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phfolio",
			Subsystem: "aggregate",
			Name:      "cache_lookups_total",
			Help:      "聚合快照缓存查询次数（按命中与否）。",
		},
		[]string{"scope", "result"},
	)

	coalescedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phfolio",
			Subsystem: "aggregate",
			Name:      "coalesced_loads_total",
			Help:      "被合并到进行中请求的加载次数。",
		},
		[]string{"scope"},
	)

	subqueryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phfolio",
			Subsystem: "aggregate",
			Name:      "subquery_failures_total",
			Help:      "降级为空值的子查询次数。",
		},
		[]string{"section"},
	)

	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phfolio",
			Subsystem: "mutation",
			Name:      "total",
			Help:      "实体写操作次数（按结果）。",
		},
		[]string{"entity", "op", "outcome"},
	)
)

// ObserveCacheLookup 记录一次缓存查询。
func ObserveCacheLookup(scope string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(scope, result).Inc()
}

func ObserveCoalesced(scope string) {
	coalescedTotal.WithLabelValues(scope).Inc()
}

func ObserveSubqueryFailure(section string) {
	subqueryFailuresTotal.WithLabelValues(section).Inc()
}

// ObserveMutation 的 outcome 取值：ok、invalid、failed。
func ObserveMutation(entity, op, outcome string) {
	mutationsTotal.WithLabelValues(entity, op, outcome).Inc()
}
