package smsverify

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts sends per agent, failovers between agents and generated codes.
// A nil *Metrics counts nothing.
type Metrics struct {
	registry  *prometheus.Registry
	sends     *prometheus.CounterVec
	failovers *prometheus.CounterVec
	codes     prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smsverify",
			Name:      "sms_sends_total",
			Help:      "SMS sends by agent and status, including later delivery reports.",
		}, []string{"agent", "status"}),
		failovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smsverify",
			Name:      "agent_failovers_total",
			Help:      "Sends passed from a failing agent to the next agent on the alternate list.",
		}, []string{"from", "to"}),
		codes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smsverify",
			Name:      "codes_generated_total",
			Help:      "Verification codes generated.",
		}),
	}
	m.registry.MustRegister(m.sends, m.failovers, m.codes)
	return m
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) sent(agent, status string) {
	if m != nil {
		m.sends.WithLabelValues(agent, status).Inc()
	}
}

func (m *Metrics) failover(from, to string) {
	if m != nil {
		m.failovers.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) codeGenerated() {
	if m != nil {
		m.codes.Inc()
	}
}
