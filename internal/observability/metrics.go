package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Domain metrics. Labels are fixed, low-cardinality enums; never label by
// user, thread or channel id.
var (
	// ThreadsOpened counts threads created.
	ThreadsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modmail_threads_opened_total",
			Help: "Total number of threads opened.",
		},
	)

	// ThreadsClosed counts CLOSED transitions by reason
	// (command, scheduled, orphaned, channel_deleted).
	ThreadsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmail_threads_closed_total",
			Help: "Total number of threads closed, by reason.",
		},
		[]string{"reason"},
	)

	// MessagesRelayed counts relay attempts by direction (to_user, from_user)
	// and outcome (sent, failed).
	MessagesRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmail_messages_relayed_total",
			Help: "Total number of relayed messages, by direction and outcome.",
		},
		[]string{"direction", "outcome"},
	)

	// QueueDepth gauges tasks waiting in the dispatch queue.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modmail_dispatch_queue_depth",
			Help: "Number of tasks waiting in the dispatch queue.",
		},
	)

	// QueueTasks counts finished dispatch tasks by outcome
	// (ok, failed, panic, timeout).
	QueueTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmail_dispatch_tasks_total",
			Help: "Total number of dispatch queue tasks, by outcome.",
		},
		[]string{"outcome"},
	)

	// AttachmentsSaved counts attachment saves by backend and outcome
	// (ok, failed).
	AttachmentsSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmail_attachments_saved_total",
			Help: "Total number of attachment saves, by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	// SweeperRuns counts sweeper iterations by sweeper and outcome (ok, error).
	SweeperRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modmail_sweeper_runs_total",
			Help: "Total number of sweeper iterations, by sweeper and outcome.",
		},
		[]string{"sweeper", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		ThreadsOpened,
		ThreadsClosed,
		MessagesRelayed,
		QueueDepth,
		QueueTasks,
		AttachmentsSaved,
		SweeperRuns,
	)
}
