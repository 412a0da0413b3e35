package router

import "github.com/prometheus/client_golang/prometheus"

type routerMetrics struct {
	messages *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newRouterMetrics() *routerMetrics {
	return &routerMetrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bot",
			Name:      "messages_total",
			Help:      "Routed messages by route and outcome",
		}, []string{"route", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bot",
			Name:      "message_duration_seconds",
			Help:      "Time spent routing a message, including the weather lookup",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"route"}),
	}
}
