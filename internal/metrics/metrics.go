// Package metrics holds the Prometheus collectors for a quiz session.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quiz_session"

type Metrics struct {
	eventsReceived    *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	outboundSent      *prometheus.CounterVec
	apiCalls          *prometheus.HistogramVec
	pollFailures      prometheus.Counter
	ticketTransitions *prometheus.CounterVec
	roundsStarted     prometheus.Counter
	answersSubmitted  prometheus.Counter
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Inbound events applied, by type.",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Inbound events not applied, by reason.",
		}, []string{"reason"}),
		outboundSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_sent_total",
			Help:      "Outbound stream messages, by type and outcome.",
		}, []string{"type", "status"}),
		apiCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_call_duration_seconds",
			Help:      "Request/response call latency, by operation and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_poll_failures_total",
			Help:      "Match status polls that failed and were retried on the next tick.",
		}),
		ticketTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticket_transitions_total",
			Help:      "Matchmaking ticket transitions.",
		}, []string{"from", "to"}),
		roundsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_started_total",
			Help:      "Questions received.",
		}),
		answersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_submitted_total",
			Help:      "Answers forwarded to the authority.",
		}),
	}
	reg.MustRegister(
		m.eventsReceived,
		m.eventsDropped,
		m.outboundSent,
		m.apiCalls,
		m.pollFailures,
		m.ticketTransitions,
		m.roundsStarted,
		m.answersSubmitted,
	)
	return m
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (m *Metrics) RecordEventReceived(eventType string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(eventType).Inc()
}

// RecordEventDropped counts duplicates and undecodable frames.
func (m *Metrics) RecordEventDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordOutbound(msgType string, success bool) {
	if m == nil {
		return
	}
	m.outboundSent.WithLabelValues(msgType, status(success)).Inc()
}

func (m *Metrics) RecordAPICall(operation string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.apiCalls.WithLabelValues(operation, status(success)).Observe(d.Seconds())
}

func (m *Metrics) RecordPollFailure() {
	if m == nil {
		return
	}
	m.pollFailures.Inc()
}

func (m *Metrics) RecordTicketTransition(from, to string) {
	if m == nil {
		return
	}
	m.ticketTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordRoundStarted() {
	if m == nil {
		return
	}
	m.roundsStarted.Inc()
}

func (m *Metrics) RecordAnswerSubmitted() {
	if m == nil {
		return
	}
	m.answersSubmitted.Inc()
}
