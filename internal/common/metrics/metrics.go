// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_dispatch_total",
			Help: "Total number of gateway submits by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	RemindersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_reminders_sent_total",
			Help: "Total number of reminder messages dispatched",
		},
	)

	Escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_escalations_total",
			Help: "Total number of invitations escalated, by trigger",
		},
		[]string{"trigger"},
	)

	Acknowledgements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_acknowledgements_total",
			Help: "Total number of acknowledgements recorded, by response",
		},
		[]string{"response"},
	)

	RepliesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_replies_dropped_total",
			Help: "Inbound replies that matched no open invitation",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "outreach_scheduler_tick_duration_seconds",
			Help: "Duration of scheduler tick evaluation in seconds",
		},
	)

	FanoutPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_fanout_published_total",
			Help: "Fan-out envelopes published, by kind",
		},
		[]string{"kind"},
	)
)
