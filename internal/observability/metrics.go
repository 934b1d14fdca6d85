package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	usersRegisteredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "exercise_tracker",
		Subsystem: "registry",
		Name:      "users_registered_total",
		Help:      "Number of users registered.",
	})
	entriesLoggedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "exercise_tracker",
		Subsystem: "exercise_log",
		Name:      "entries_logged_total",
		Help:      "Number of exercise entries persisted.",
	})
	logQueriesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "exercise_tracker",
		Subsystem: "exercise_log",
		Name:      "log_queries_total",
		Help:      "Number of exercise log queries answered.",
	})
	entryPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "exercise_tracker",
		Subsystem: "exercise_log",
		Name:      "last_entry_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent exercise entry persisted.",
	})
	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "exercise_tracker",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route, method and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)

func init() {
	prometheus.MustRegister(usersRegisteredCounter, entriesLoggedCounter, logQueriesCounter, entryPersistGauge, requestDuration)
}

// RecordUserRegistered increments the registration counter.
func RecordUserRegistered() {
	usersRegisteredCounter.Inc()
}

// RecordEntryLogged increments the entry counter and moves the persistence watermark.
func RecordEntryLogged(ts time.Time) {
	entriesLoggedCounter.Inc()
	if ts.IsZero() {
		return
	}
	entryPersistGauge.Set(float64(ts.Unix()))
}

// RecordLogQuery increments the log query counter.
func RecordLogQuery() {
	logQueriesCounter.Inc()
}

// ObserveRequest records the latency of a served request.
func ObserveRequest(route, method, status string, elapsed time.Duration) {
	requestDuration.WithLabelValues(route, method, status).Observe(elapsed.Seconds())
}
