package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	analysesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plancheck",
		Name:      "analyses_created_total",
		Help:      "Analyses accepted and handed to the workflow",
	})

	analysisTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plancheck",
		Name:      "analysis_transitions_total",
		Help:      "Terminal transitions applied, by status and source",
	}, []string{"status", "source"})

	staleCallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "plancheck",
		Name:      "analysis_stale_callbacks_total",
		Help:      "Completion callbacks that arrived after the analysis was already terminal",
	})

	creditsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plancheck",
		Name:      "credits_total",
		Help:      "Credits moved through the ledger, by entry type",
	}, []string{"type"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "plancheck",
		Name:      "workflow_dispatch_seconds",
		Help:      "Latency of the workflow dispatch call",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"outcome"})

	reaperSwept = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plancheck",
		Name:      "reaper_rows_total",
		Help:      "Stalled analyses seen by the reaper, by result",
	}, []string{"result"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plancheck",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter, by group",
	}, []string{"group"})
)

// IncAnalysisCreated counts an analysis that reached the workflow.
func IncAnalysisCreated() {
	analysesCreated.Inc()
}

// IncTransition counts a terminal transition won by source (webhook, reaper, dispatch).
func IncTransition(status, source string) {
	analysisTransitions.WithLabelValues(status, source).Inc()
}

// IncStaleCallback counts a duplicate or late completion callback.
func IncStaleCallback() {
	staleCallbacks.Inc()
}

// AddCredits records credits moved by entry type.
func AddCredits(entryType string, amount int) {
	if amount <= 0 {
		return
	}
	creditsMoved.WithLabelValues(entryType).Add(float64(amount))
}

// ObserveDispatch records a dispatch latency.
func ObserveDispatch(outcome string, d time.Duration) {
	dispatchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// AddReaperRows records reaper outcomes (cleaned, error, skipped).
func AddReaperRows(result string, n int) {
	if n <= 0 {
		return
	}
	reaperSwept.WithLabelValues(result).Add(float64(n))
}

// IncRateLimited counts a request rejected by the rate limiter.
func IncRateLimited(group string) {
	rateLimited.WithLabelValues(group).Inc()
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
