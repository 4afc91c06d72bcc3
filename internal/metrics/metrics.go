package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bookpoint"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	slotQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_queries_total",
			Help:      "Slot queries by outcome.",
		},
		[]string{"outcome"},
	)

	commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_commits_total",
			Help:      "Booking commits by outcome.",
		},
		[]string{"outcome"},
	)

	commitLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "booking_commit_duration_seconds",
			Help:      "Time spent committing a booking, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	codeCollisions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_code_collisions_total",
			Help:      "Booking code draws that hit an existing code.",
		},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_tasks_total",
			Help:      "Processed sync tasks by target and result.",
		},
		[]string{"target", "result"},
	)

	bookingEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_events_total",
			Help:      "Published booking events by type.",
		},
		[]string{"type"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, slotQueries, commits, commitLatency, codeCollisions, syncTasks, bookingEvents)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncSlotQuery(outcome string) {
	slotQueries.WithLabelValues(outcome).Inc()
}

// ObserveCommit records one commit attempt with its outcome label.
func ObserveCommit(outcome string, elapsed time.Duration) {
	commits.WithLabelValues(outcome).Inc()
	commitLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func IncCodeCollision() {
	codeCollisions.Inc()
}

func IncSyncTask(target, result string) {
	syncTasks.WithLabelValues(target, result).Inc()
}

func IncBookingEvent(eventType string) {
	bookingEvents.WithLabelValues(eventType).Inc()
}
