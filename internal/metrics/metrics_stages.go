package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lodestar_stage_failed_total",
			Help: "Total number of failed stage executions",
		},
		[]string{"stage"},
	)

	stageCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lodestar_stage_count_total",
			Help: "Total number of stage executions",
		},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lodestar_stage_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	advisoryFindings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lodestar_advisory_findings_total",
			Help: "Total number of advisory scan findings recorded",
		},
		[]string{"stage"},
	)

	lastStageStart = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lodestar_last_stage_start_timestamp",
			Help: "Unix timestamp of when the last execution of a stage started",
		},
		[]string{"stage"},
	)

	lastStageEnd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lodestar_last_stage_end_timestamp",
			Help: "Unix timestamp of when the last execution of a stage ended",
		},
		[]string{"stage"},
	)
)

func StageStarted(stage string) {
	stageCount.Inc()
	lastStageStart.WithLabelValues(stage).SetToCurrentTime()
}

func StageSucceeded(stage string, startTime time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(startTime).Seconds())
	lastStageEnd.WithLabelValues(stage).SetToCurrentTime()
}

func StageFailed(stage string) {
	stageFailed.WithLabelValues(stage).Inc()
	lastStageEnd.WithLabelValues(stage).SetToCurrentTime()
}

func AdvisoryFinding(stage string) {
	advisoryFindings.WithLabelValues(stage).Inc()
}
