// Package metrics exposes Prometheus counters for message delivery.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "telegrama"

// Attempt results.
const (
	ResultOK         = "ok"
	ResultRemote     = "remote_error"
	ResultTransport  = "transport_error"
	ResultFormatting = "formatting_error"
)

// ResultConfiguration is only recorded for sends: configuration errors stop
// before any attempt.
const ResultConfiguration = "configuration_error"

// Delivery groups the delivery collectors. A nil *Delivery is valid and
// records nothing.
type Delivery struct {
	attempts  *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	sends     *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// NewDelivery creates the collectors and registers them on reg (if non-nil).
func NewDelivery(reg prometheus.Registerer) *Delivery {
	m := &Delivery{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "sendMessage attempts by dialect and result.",
		}, []string{"dialect", "result"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Dialect fallbacks taken after a failed attempt.",
		}, []string{"from", "to"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Completed Send calls by final result.",
		}, []string{"result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Round trip time of one sendMessage attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"dialect"}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.fallbacks, m.sends, m.latency)
	}
	return m
}

func (m *Delivery) ObserveAttempt(dialect, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(dialect, result).Inc()
	if result != ResultFormatting {
		m.latency.WithLabelValues(dialect).Observe(took.Seconds())
	}
}

func (m *Delivery) ObserveFallback(from, to string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(from, to).Inc()
}

func (m *Delivery) ObserveSend(result string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(result).Inc()
}
