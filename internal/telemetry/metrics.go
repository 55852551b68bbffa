package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	quotaDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medai",
		Name:      "quota_decisions_total",
		Help:      "Quota admission decisions by feature and outcome.",
	}, []string{"feature", "outcome"})

	guardDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medai",
		Name:      "guard_decisions_total",
		Help:      "Route guard decisions by action.",
	}, []string{"action"})

	llmLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "medai",
		Name:      "llm_request_duration_seconds",
		Help:      "LLM completion latency by provider and status.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider", "status"})
)

// Outcome labels for quota decisions.
const (
	OutcomeAllowed   = "allowed"
	OutcomeDenied    = "denied"
	OutcomeUnlimited = "unlimited"
	OutcomeReleased  = "released"
)

func ObserveQuota(feature, outcome string) {
	quotaDecisions.WithLabelValues(feature, outcome).Inc()
}

func ObserveGuard(action string) {
	guardDecisions.WithLabelValues(action).Inc()
}

func ObserveLLM(provider string, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmLatency.WithLabelValues(provider, status).Observe(took.Seconds())
}

var httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "medai",
	Name:      "http_request_duration_seconds",
	Help:      "HTTP latency by method, matched route and status class.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "class"})

// ObserveHTTP records one served request. route should be the matched
// pattern, not the raw path, to keep label cardinality bounded.
func ObserveHTTP(method, route string, status int, took time.Duration) {
	httpLatency.WithLabelValues(method, route, strconv.Itoa(status/100)+"xx").Observe(took.Seconds())
}
