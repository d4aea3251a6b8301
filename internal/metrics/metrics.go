package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages pushed counter
	MessagesPushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqs_messages_pushed_total",
			Help: "Total number of messages pushed",
		},
		[]string{"queue"},
	)

	// Messages pulled counter
	MessagesPulled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqs_messages_pulled_total",
			Help: "Total number of messages pulled",
		},
		[]string{"queue"},
	)

	// Messages deleted by receipt handle
	MessagesDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqs_messages_deleted_total",
			Help: "Total number of messages deleted",
		},
		[]string{"queue"},
	)

	// Messages returned to available after their visibility timeout
	MessagesRequeued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqs_messages_requeued_total",
			Help: "Total number of in-flight messages requeued by the sweeper",
		},
		[]string{"queue"},
	)

	// Purges
	QueuePurges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqs_queue_purges_total",
			Help: "Total number of queue purges",
		},
		[]string{"queue"},
	)

	// Rejected calls (empty body, unknown handle, bad attribute)
	Rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqs_rejections_total",
			Help: "Total number of rejected queue operations by reason",
		},
		[]string{"queue", "reason"},
	)

	// Sweeper run duration
	SweeperDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqs_sweeper_duration_seconds",
			Help:    "Time taken for sweeper to process messages",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Sweeper errors counter
	SweeperErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sqs_sweeper_errors_total",
			Help: "Total number of sweeper errors",
		},
	)
)

// Rejection reasons.
const (
	ReasonEmptyBody        = "empty_body"
	ReasonUnknownHandle    = "unknown_handle"
	ReasonUnknownAttribute = "unknown_attribute"
	ReasonInvalidAttribute = "invalid_attribute"
	ReasonInternal         = "internal"
)

// ForgetQueue drops every per-queue series once a queue is deleted.
func ForgetQueue(name string) {
	labels := prometheus.Labels{"queue": name}
	MessagesPushed.DeletePartialMatch(labels)
	MessagesPulled.DeletePartialMatch(labels)
	MessagesDeleted.DeletePartialMatch(labels)
	MessagesRequeued.DeletePartialMatch(labels)
	QueuePurges.DeletePartialMatch(labels)
	Rejections.DeletePartialMatch(labels)
}
