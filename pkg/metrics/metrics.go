package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus instruments used by the service.
// A nil *Metrics discards all observations.
type Metrics struct {
	Exchanges         *prometheus.CounterVec
	AuditWrites       *prometheus.CounterVec
	PIIMasked         *prometheus.CounterVec
	CompletionLatency prometheus.Histogram
}

// New registers the instruments on reg under namespace.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Exchanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Prompt exchanges by outcome.",
		}, []string{"outcome"}),
		AuditWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_writes_total",
			Help:      "Audit record writes by result.",
		}, []string{"result"}),
		PIIMasked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pii_masked_total",
			Help:      "Spans replaced by the redactor, by field and rule.",
		}, []string{"field", "rule"}),
		CompletionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_ms",
			Help:      "Latency of upstream completion calls in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}),
	}
}

func (m *Metrics) ObserveExchange(outcome string) {
	if m == nil {
		return
	}
	m.Exchanges.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAuditWrite(result string) {
	if m == nil {
		return
	}
	m.AuditWrites.WithLabelValues(result).Inc()
}

// ObservePIIMasked adds per-rule match counts for one redacted field.
func (m *Metrics) ObservePIIMasked(field string, counts map[string]int) {
	if m == nil {
		return
	}
	for rule, n := range counts {
		m.PIIMasked.WithLabelValues(field, rule).Add(float64(n))
	}
}

func (m *Metrics) ObserveCompletionLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.CompletionLatency.Observe(float64(d.Milliseconds()))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
