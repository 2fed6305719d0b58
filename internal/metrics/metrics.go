// Package metrics exposes the gateway's Prometheus collectors.
//
// Every method is safe to call on a nil *Metrics, so components can be
// built without instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "gridcontrol_"

	// ResultAccepted and ResultDropped label routed messages.
	ResultAccepted = "accepted"
	ResultDropped  = "dropped"

	// ResultPublished and ResultFailed label dispatched commands.
	ResultPublished = "published"
	ResultFailed    = "failed"
)

// Metrics bundles the gateway's collectors.
type Metrics struct {
	MessagesTotal        *prometheus.CounterVec
	PersistFailuresTotal *prometheus.CounterVec
	DecisionsTotal       prometheus.Counter
	RulesFiredTotal      *prometheus.CounterVec
	DecisionDuration     prometheus.Histogram
	CommandsTotal        *prometheus.CounterVec
	PublishFailuresTotal prometheus.Counter
	TransportConnected   prometheus.Gauge
}

// New constructs the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "messages_total",
				Help: "Inbound device messages by kind and result",
			},
			[]string{"kind", "result"},
		),
		PersistFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "persist_failures_total",
				Help: "Telemetry persistence failures by recorder",
			},
			[]string{"recorder"},
		),
		DecisionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "decisions_total",
			Help: "Telemetry samples evaluated by the control engine",
		}),
		RulesFiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rules_fired_total",
				Help: "Control rules that produced a command, by rule",
			},
			[]string{"rule"},
		),
		DecisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "decision_duration_seconds",
			Help:    "Time to evaluate and dispatch one telemetry sample",
			Buckets: prometheus.DefBuckets,
		}),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_total",
				Help: "Commands handed to the transport by command, source and result",
			},
			[]string{"command", "source", "result"},
		),
		PublishFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "publish_failures_total",
			Help: "Publishes the broker did not acknowledge",
		}),
		TransportConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "transport_connected",
			Help: "1 while the MQTT session is up",
		}),
	}

	reg.MustRegister(
		m.MessagesTotal,
		m.PersistFailuresTotal,
		m.DecisionsTotal,
		m.RulesFiredTotal,
		m.DecisionDuration,
		m.CommandsTotal,
		m.PublishFailuresTotal,
		m.TransportConnected,
	)
	return m
}

// MessageRouted counts an inbound message.
func (m *Metrics) MessageRouted(kind, result string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(kind, result).Inc()
}

// PersistFailed counts a failed telemetry save.
func (m *Metrics) PersistFailed(recorder string) {
	if m == nil {
		return
	}
	m.PersistFailuresTotal.WithLabelValues(recorder).Inc()
}

// DecisionMade records one engine evaluation and the rules it fired.
func (m *Metrics) DecisionMade(elapsed time.Duration, rules ...string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.Inc()
	m.DecisionDuration.Observe(elapsed.Seconds())
	for _, rule := range rules {
		m.RulesFiredTotal.WithLabelValues(rule).Inc()
	}
}

// CommandDispatched counts a command hand-off to the transport.
func (m *Metrics) CommandDispatched(command, source, result string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, source, result).Inc()
}

// PublishFailed counts an asynchronous publish failure.
func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.PublishFailuresTotal.Inc()
}

// SetTransportConnected tracks the MQTT session state.
func (m *Metrics) SetTransportConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.TransportConnected.Set(1)
		return
	}
	m.TransportConnected.Set(0)
}
