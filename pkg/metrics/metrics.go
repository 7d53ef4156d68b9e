package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all metrics for a node.
type Metrics struct {
	// Dispatch metrics
	actionsTotal     *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	ruleFirings      prometheus.Counter
	ruleErrors       prometheus.Counter

	// Chronicle metrics
	mergesTotal    prometheus.Counter
	snapshotsTotal prometheus.Counter

	// Gossip metrics
	messagesSent      prometheus.Counter
	messagesReceived  prometheus.Counter
	messagesDeduped   prometheus.Counter
	sendFailures      prometheus.Counter

	// Worker metrics
	tasksTotal   *prometheus.CounterVec
	taskDuration prometheus.Histogram
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		actionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_actions_total",
				Help: "Total number of dispatched actions",
			},
			[]string{"family", "status"},
		),

		dispatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_dispatch_duration_seconds",
			Help:    "Action dispatch duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		ruleFirings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "engine_rule_firings_total",
			Help: "Total number of rule actions fired",
		}),

		ruleErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "engine_rule_errors_total",
			Help: "Total number of rule action failures",
		}),

		mergesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_merges_total",
			Help: "Total number of chronicle merges",
		}),

		snapshotsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "engine_snapshots_total",
			Help: "Total number of history snapshots taken",
		}),

		messagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gossip_messages_sent_total",
			Help: "Total number of gossip messages forwarded",
		}),

		messagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gossip_messages_received_total",
			Help: "Total number of gossip messages received",
		}),

		messagesDeduped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gossip_messages_deduped_total",
			Help: "Total number of duplicate gossip messages dropped",
		}),

		sendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gossip_send_failures_total",
			Help: "Total number of failed peer sends",
		}),

		tasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_tasks_total",
				Help: "Total number of worker tasks",
			},
			[]string{"kind", "status"},
		),

		taskDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_task_duration_seconds",
			Help:    "Worker task duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordAction records a dispatched action by family and status.
func (m *Metrics) RecordAction(family, status string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(family, status).Inc()
}

// RecordDispatchDuration records the duration of a dispatch.
func (m *Metrics) RecordDispatchDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.Observe(d.Seconds())
}

// RecordRuleFiring records a rule action firing.
func (m *Metrics) RecordRuleFiring() {
	if m == nil {
		return
	}
	m.ruleFirings.Inc()
}

// RecordRuleError records a rule action failure.
func (m *Metrics) RecordRuleError() {
	if m == nil {
		return
	}
	m.ruleErrors.Inc()
}

// RecordMerge records a chronicle merge.
func (m *Metrics) RecordMerge() {
	if m == nil {
		return
	}
	m.mergesTotal.Inc()
}

// RecordSnapshot records a history snapshot.
func (m *Metrics) RecordSnapshot() {
	if m == nil {
		return
	}
	m.snapshotsTotal.Inc()
}

// RecordMessageSent records a forwarded gossip message.
func (m *Metrics) RecordMessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

// RecordMessageReceived records a received gossip message.
func (m *Metrics) RecordMessageReceived() {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
}

// RecordMessageDeduped records a dropped duplicate.
func (m *Metrics) RecordMessageDeduped() {
	if m == nil {
		return
	}
	m.messagesDeduped.Inc()
}

// RecordSendFailure records a failed peer send.
func (m *Metrics) RecordSendFailure() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

// RecordTask records a worker task by kind and status.
func (m *Metrics) RecordTask(kind, status string) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(kind, status).Inc()
}

// RecordTaskDuration records the duration of a worker task.
func (m *Metrics) RecordTaskDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.taskDuration.Observe(d.Seconds())
}
