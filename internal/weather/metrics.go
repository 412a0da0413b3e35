package weather

import "github.com/prometheus/client_golang/prometheus"

type clientMetrics struct {
	requests *prometheus.CounterVec
	duration prometheus.Histogram
}

func newClientMetrics() *clientMetrics {
	return &clientMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Weather API lookups by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Weather API lookup duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
	}
}

func (m *clientMetrics) observe(reason FailureReason, seconds float64) {
	m.requests.WithLabelValues(reason.String()).Inc()
	m.duration.Observe(seconds)
}
