// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_pipeline_requests_total",
			Help: "Total number of pipeline requests by terminal outcome",
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "copilot_stage_duration_seconds",
			Help: "Duration of pipeline stages in seconds",
		},
		[]string{"stage"},
	)

	GuardViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_guard_violations_total",
			Help: "Total number of business-rule violations by rule and severity",
		},
		[]string{"rule", "severity"},
	)

	ActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_actions_executed_total",
			Help: "Total number of planned actions executed",
		},
		[]string{"intent", "status"},
	)

	PlansAwaitingApproval = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "copilot_plans_awaiting_approval",
			Help: "Number of plans currently pending approval",
		},
	)
)
