package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	dlqProcessedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exercise_tracker",
		Subsystem: "dlq",
		Name:      "messages_processed_total",
		Help:      "DLQ entries handled in a pass.",
	}, []string{"topic", "event_type"})

	dlqRequeuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exercise_tracker",
		Subsystem: "dlq",
		Name:      "messages_requeued_total",
		Help:      "DLQ entries reinserted into the outbox.",
	}, []string{"topic", "event_type"})

	dlqQuarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exercise_tracker",
		Subsystem: "dlq",
		Name:      "messages_quarantined_total",
		Help:      "DLQ entries quarantined after exhausting retries.",
	}, []string{"topic", "event_type"})

	dlqRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exercise_tracker",
		Subsystem: "dlq",
		Name:      "retry_scheduled_total",
		Help:      "Times a DLQ entry was rescheduled after a failed requeue.",
	}, []string{"topic", "event_type"})

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "exercise_tracker",
		Subsystem: "dlq",
		Name:      "queued_messages",
		Help:      "Entries in the DLQ that are not quarantined.",
	})
)

func init() {
	prometheus.MustRegister(dlqProcessedCounter, dlqRequeuedCounter, dlqQuarantinedCounter, dlqRetryCounter, dlqBacklogGauge)
}
