package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	pageFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clubfeed",
			Subsystem: "stream",
			Name:      "page_fetches_total",
			Help:      "Total number of page fetches by stream kind, operation and outcome.",
		},
		[]string{"kind", "op", "outcome"},
	)

	pageFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clubfeed",
			Subsystem: "stream",
			Name:      "page_fetch_duration_seconds",
			Help:      "Duration of page fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"kind"},
	)

	mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clubfeed",
			Subsystem: "mutation",
			Name:      "total",
			Help:      "Total number of item mutations by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	rollbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clubfeed",
			Subsystem: "mutation",
			Name:      "rollbacks_total",
			Help:      "Optimistic mutations reverted after a remote failure.",
		},
		[]string{"action"},
	)

	openSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clubfeed",
			Subsystem: "session",
			Name:      "open",
			Help:      "Current number of open stream sessions.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		pageFetches,
		pageFetchDuration,
		mutations,
		rollbacks,
		openSessions,
	)
}

// RecordPageFetch records a page fetch. outcome is one of "ok", "error" or
// "superseded".
func RecordPageFetch(kind, op, outcome string, duration time.Duration) {
	pageFetches.WithLabelValues(kind, op, outcome).Inc()
	pageFetchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func RecordMutation(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	mutations.WithLabelValues(action, outcome).Inc()
}

func RecordRollback(action string) {
	rollbacks.WithLabelValues(action).Inc()
}

func SetOpenSessions(n int) {
	openSessions.Set(float64(n))
}
