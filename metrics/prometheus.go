package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports gateway events and latencies as Prometheus
// series under the x402chat namespace.
type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the gateway collectors on the default
// registry and serves them to whatever handler exposes it.
func NewPrometheusRecorder() Recorder {
	return NewPrometheusRecorderWith(prometheus.DefaultRegisterer)
}

// NewPrometheusRecorderWith registers on a caller-supplied registry. Tests
// use this to avoid duplicate-registration panics across cases.
func NewPrometheusRecorderWith(reg prometheus.Registerer) Recorder {
	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "x402chat",
			Name:      "events_total",
			Help:      "payment gateway event counters",
		},
		[]string{"type", "network"},
	)

	// Completion streams run well past DefBuckets' 10s ceiling, so the tail
	// extends to two minutes.
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "x402chat",
			Name:      "latency_seconds",
			Help:      "payment gateway operation latency",
			Buckets:   append(prometheus.DefBuckets, 30, 60, 120),
		},
		[]string{"operation", "network"},
	)

	reg.MustRegister(counters, histogram)

	return &PrometheusRecorder{
		counters:  counters,
		histogram: histogram,
	}
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":    name,
		"network": labels["network"],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"operation": name,
		"network":   labels["network"],
	}).Observe(d.Seconds())
}
