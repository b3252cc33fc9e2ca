package allocation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the per-profile gauges and tick-latency histogram exported
// by the controller, grounded on the prometheus wiring of
// internal/common/task/background_task.go in the teacher codebase.
type metrics struct {
	target          *prometheus.GaugeVec
	pendingToRemove *prometheus.GaugeVec
	runningCount    *prometheus.GaugeVec
	maxNeeded       *prometheus.GaugeVec
	tickLatency     prometheus.Histogram
}

// newMetrics registers the allocation controller's metrics against reg. A
// nil reg creates the metrics without registering them anywhere.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		target: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "allocation_target_executors",
			Help: "Current desired executor count, per resource profile.",
		}, []string{"profile"}),
		pendingToRemove: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "allocation_pending_to_remove_executors",
			Help: "Executors asked to die whose death has not been confirmed, per resource profile.",
		}, []string{"profile"}),
		runningCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "allocation_running_executors",
			Help: "Live executors tagged with this resource profile.",
		}, []string{"profile"}),
		maxNeeded: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "allocation_max_needed_executors",
			Help: "Executors needed to drain the current backlog, per resource profile.",
		}, []string{"profile"}),
		tickLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "allocation_tick_latency_seconds",
			Help:    "Wall-clock time spent in one schedule tick.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
	}
}
