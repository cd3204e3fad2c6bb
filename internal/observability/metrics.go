package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions prometheus.Gauge
	Turns          *prometheus.CounterVec
	Attempts       *prometheus.CounterVec
	TurnLatency    prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics registers the instruments on a private registry so several
// instances can coexist in one process.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of chat sessions held in memory.",
		}),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by outcome.",
		}, []string{"outcome"}),
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_attempts_total",
			Help:      "Backend attempts by model and result.",
		}, []string{"model", "result"}),
		TurnLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_turn_latency_ms",
			Help:      "End to end chat turn latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000},
		}),
		gatherer: reg,
	}
}

func (m *Metrics) ObserveTurn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveAttempt(model, result string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(model, result).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
