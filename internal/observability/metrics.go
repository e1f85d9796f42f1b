package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	clientOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ohuakv",
			Subsystem: "client",
			Name:      "operations_total",
			Help:      "Client operations by outcome status.",
		},
		[]string{"op", "status"},
	)
	clientDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ohuakv",
			Subsystem: "client",
			Name:      "operation_duration_seconds",
			Help:      "Client operation round-trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	mockRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ohuakv",
			Subsystem: "mock",
			Name:      "requests_total",
			Help:      "Requests served by the mock endpoint.",
		},
		[]string{"op", "result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(clientOperations, clientDuration, mockRequests)
	})
}

// RecordOperation counts one client operation. Scan is counted but not timed.
func RecordOperation(op, status string, duration time.Duration) {
	RegisterMetrics()
	clientOperations.WithLabelValues(op, status).Inc()
	if duration > 0 {
		clientDuration.WithLabelValues(op).Observe(duration.Seconds())
	}
}

func RecordMockRequest(op, result string) {
	RegisterMetrics()
	mockRequests.WithLabelValues(op, result).Inc()
}
