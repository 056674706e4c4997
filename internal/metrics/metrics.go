package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sessionbooking"

var (
	once sync.Once

	digestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digest_runs_total",
			Help:      "Count of digest task runs by result.",
		},
		[]string{"result"},
	)

	digestRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "digest_run_duration_seconds",
			Help:      "Duration of a digest task run.",
			Buckets:   []float64{.05, .1, .5, 1, 2, 5, 10, 30, 60},
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Count of dispatched notifications by kind and result.",
		},
		[]string{"kind", "result"},
	)

	slotOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_operations_total",
			Help:      "Count of slot repository writes by operation.",
		},
		[]string{"op"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(digestRuns, digestRunDuration, notifications, slotOperations, httpRequests)
	})
}

func IncDigestRun(result string) {
	digestRuns.WithLabelValues(result).Inc()
}

func ObserveDigestDuration(seconds float64) {
	digestRunDuration.Observe(seconds)
}

func IncNotification(kind, result string) {
	notifications.WithLabelValues(kind, result).Inc()
}

func IncSlotOperation(op string) {
	slotOperations.WithLabelValues(op).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
