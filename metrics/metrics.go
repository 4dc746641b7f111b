package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the widget.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	ActivePages prometheus.Gauge
	Turns       *prometheus.CounterVec
	TurnLatency *prometheus.HistogramVec
	Recordings  *prometheus.CounterVec
	WSMessages  *prometheus.CounterVec
}

// New registers every instrument on a fresh registry
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActivePages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_pages",
			Help:      "Number of open conversation pages.",
		}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by input kind and outcome.",
		}, []string{"kind", "outcome"}),
		TurnLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "Round-trip latency of agent requests in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}, []string{"kind"}),
		Recordings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Finished recordings by stop reason.",
		}, []string{"reason"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

// ObserveTurn records one finished turn
func (m *Metrics) ObserveTurn(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(kind, outcome).Inc()
	m.TurnLatency.WithLabelValues(kind).Observe(float64(d.Milliseconds()))
}

// ObserveRecording records one finished recording
func (m *Metrics) ObserveRecording(reason string) {
	if m == nil {
		return
	}
	m.Recordings.WithLabelValues(reason).Inc()
}

// ObserveWSMessage counts one WebSocket message
func (m *Metrics) ObserveWSMessage(direction, typ string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, typ).Inc()
}

// PageOpened and PageClosed track live pages
func (m *Metrics) PageOpened() {
	if m == nil {
		return
	}
	m.ActivePages.Inc()
}

func (m *Metrics) PageClosed() {
	if m == nil {
		return
	}
	m.ActivePages.Dec()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
