package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the widget host.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	Turns             *prometheus.CounterVec
	TurnLatency       *prometheus.HistogramVec
	Errors            *prometheus.CounterVec
	Recordings        *prometheus.CounterVec
	LeadNotifications *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
}

// NewMetrics registers the instruments on the default registry
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry registers the instruments on reg
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of connected widget render layers.",
		}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by kind and outcome.",
		}, []string{"kind", "outcome"}),
		TurnLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "Time from dispatch to settled reply in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}, []string{"kind"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Classified failures by kind.",
		}, []string{"kind"}),
		Recordings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Finished recordings by outcome.",
		}, []string{"outcome"}),
		LeadNotifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lead_notifications_total",
			Help:      "Lead notifications by source and outcome.",
		}, []string{"source", "outcome"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

// ObserveTurn records a settled turn and its latency
func (m *Metrics) ObserveTurn(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(kind, outcome).Inc()
	m.TurnLatency.WithLabelValues(kind).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveError(kind string) {
	if m == nil || kind == "" {
		return
	}
	m.Errors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRecording(outcome string) {
	if m == nil {
		return
	}
	m.Recordings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLead(source, outcome string) {
	if m == nil {
		return
	}
	m.LeadNotifications.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ObserveMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
