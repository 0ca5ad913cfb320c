package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scriptRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "script",
			Name:      "runs_total",
			Help:      "外部脚本调用次数。",
		},
		[]string{"script", "outcome"},
	)

	scriptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "script",
			Name:      "duration_seconds",
			Help:      "外部脚本运行耗时（秒）。",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"script"},
	)

	scriptParseFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "script",
			Name:      "parse_failures_total",
			Help:      "脚本正常退出但输出无法解析的次数。",
		},
		[]string{"script"},
	)

	jobsSavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "saved_total",
			Help:      "搜索后成功入库的职位数量。",
		},
	)

	jobsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "dropped_total",
			Help:      "搜索结果中入库失败被丢弃的职位数量。",
		},
	)
)

// Script outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeExitError = "exit_error"
	OutcomeCanceled  = "canceled"
)

// ObserveScript 记录一次脚本调用的结果与耗时。
func ObserveScript(script, outcome string, elapsed time.Duration) {
	scriptRunsTotal.WithLabelValues(script, outcome).Inc()
	scriptDuration.WithLabelValues(script).Observe(elapsed.Seconds())
}

// ScriptParseFailure counts a run whose stdout could not be decoded.
func ScriptParseFailure(script string) {
	scriptParseFailures.WithLabelValues(script).Inc()
}

// ObserveJobsSaved records the outcome of one search persistence pass.
func ObserveJobsSaved(saved, dropped int) {
	jobsSavedTotal.Add(float64(saved))
	jobsDroppedTotal.Add(float64(dropped))
}
