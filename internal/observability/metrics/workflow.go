package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/legal-pdf-workflow/internal/core/domain"
	"github.com/kirillkom/legal-pdf-workflow/internal/core/ports"
)

type WorkflowMetrics struct {
	service string

	transitionsTotal  *prometheus.CounterVec
	transfersTotal    *prometheus.CounterVec
	transferBytes     *prometheus.CounterVec
	submissionsTotal  *prometheus.CounterVec
	pollAttemptsTotal *prometheus.CounterVec
	pollSessionsTotal *prometheus.CounterVec
	pollSessionLength *prometheus.HistogramVec
	phase             *prometheus.GaugeVec
}

var _ ports.WorkflowMetrics = (*WorkflowMetrics)(nil)

var allPhases = []domain.Phase{
	domain.PhaseIdle,
	domain.PhaseSelectingFile,
	domain.PhaseTransferring,
	domain.PhaseAwaitingReview,
	domain.PhaseSubmitting,
	domain.PhasePolling,
	domain.PhaseSettled,
}

func NewWorkflowMetrics(service string, registerer prometheus.Registerer) *WorkflowMetrics {
	transitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Total workflow state transitions.",
		},
		[]string{"service", "from", "to"},
	)
	transfersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "transfers_total",
			Help:      "Total document transfers by status.",
		},
		[]string{"service", "status"},
	)
	transferBytes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "transfer_bytes_total",
			Help:      "Document bytes handed to the extraction stage by status.",
		},
		[]string{"service", "status"},
	)
	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "submissions_total",
			Help:      "Total AI submissions by status.",
		},
		[]string{"service", "status"},
	)
	pollAttemptsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "poll_attempts_total",
			Help:      "Total result fetches by result.",
		},
		[]string{"service", "result"},
	)
	pollSessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "poll_sessions_total",
			Help:      "Total finished polling sessions by outcome.",
		},
		[]string{"service", "outcome"},
	)
	pollSessionLength := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "poll_session_attempts",
			Help:      "Fetches spent per polling session.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 20},
		},
		[]string{"service", "outcome"},
	)
	phase := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "phase",
			Help:      "1 for the current workflow phase, 0 otherwise.",
		},
		[]string{"service", "phase"},
	)

	registerer.MustRegister(
		transitionsTotal,
		transfersTotal,
		transferBytes,
		submissionsTotal,
		pollAttemptsTotal,
		pollSessionsTotal,
		pollSessionLength,
		phase,
	)

	m := &WorkflowMetrics{
		service:           service,
		transitionsTotal:  transitionsTotal,
		transfersTotal:    transfersTotal,
		transferBytes:     transferBytes,
		submissionsTotal:  submissionsTotal,
		pollAttemptsTotal: pollAttemptsTotal,
		pollSessionsTotal: pollSessionsTotal,
		pollSessionLength: pollSessionLength,
		phase:             phase,
	}
	m.setPhase(domain.PhaseIdle)
	return m
}

func (m *WorkflowMetrics) RecordTransition(from, to domain.Phase) {
	m.transitionsTotal.WithLabelValues(m.service, string(from), string(to)).Inc()
	m.setPhase(to)
}

func (m *WorkflowMetrics) RecordTransfer(status string, bytes int64) {
	status = labelOrUnknown(status)
	m.transfersTotal.WithLabelValues(m.service, status).Inc()
	if bytes > 0 {
		m.transferBytes.WithLabelValues(m.service, status).Add(float64(bytes))
	}
}

func (m *WorkflowMetrics) RecordSubmission(status string) {
	m.submissionsTotal.WithLabelValues(m.service, labelOrUnknown(status)).Inc()
}

func (m *WorkflowMetrics) RecordPollAttempt(result string) {
	m.pollAttemptsTotal.WithLabelValues(m.service, labelOrUnknown(result)).Inc()
}

func (m *WorkflowMetrics) RecordPollSession(outcome domain.Outcome, attempts int) {
	label := labelOrUnknown(string(outcome))
	m.pollSessionsTotal.WithLabelValues(m.service, label).Inc()
	if attempts > 0 {
		m.pollSessionLength.WithLabelValues(m.service, label).Observe(float64(attempts))
	}
}

func (m *WorkflowMetrics) setPhase(current domain.Phase) {
	for _, p := range allPhases {
		value := 0.0
		if p == current {
			value = 1
		}
		m.phase.WithLabelValues(m.service, string(p)).Set(value)
	}
}

func labelOrUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
