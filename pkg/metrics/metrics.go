// Package metrics owns the Prometheus registry for the ops HTTP server and
// message handling counters.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bot"

// Message counter indices.
const (
	MessageMetricTotal = iota
	MessageMetricTotalReplied
	MessageMetricTotalFailed
	MessageMetricTotalRecovered
)

var messageCounterOpts = map[int]prometheus.CounterOpts{
	MessageMetricTotal:          {Name: "messages_handled_total", Help: "Inbound messages handled"},
	MessageMetricTotalReplied:   {Name: "messages_replied_total", Help: "Inbound messages whose replies were all delivered"},
	MessageMetricTotalFailed:    {Name: "messages_failed_total", Help: "Inbound messages with an undelivered reply"},
	MessageMetricTotalRecovered: {Name: "messages_recovered_total", Help: "Inbound messages whose handler panicked"},
}

// Metrics is a private registry plus the collectors the ops server and the
// message pipeline update. Collector fields are nil when their group is
// disabled.
type Metrics struct {
	reg *prometheus.Registry

	TotalHTTPRequestsCounter prometheus.Counter
	HTTPResponsesCounter     *prometheus.CounterVec
	HTTPDurationHistogram    prometheus.Histogram

	MessageMetricCounters map[int]prometheus.Counter

	server *http.Server
	errs   chan error
	log    logger.Logger
}

// NewMetrics creates a registry with the HTTP and message collector groups
// enabled as requested.
func NewMetrics(httpCounters, messageMetrics bool, l logger.Logger) Metrics {
	if l == nil {
		l = logger.NewNopLogger()
	}
	m := Metrics{reg: prometheus.NewRegistry(), log: l}

	if httpCounters {
		m.TotalHTTPRequestsCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests received by the ops server",
		})
		m.HTTPResponsesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_responses_total",
			Help:      "HTTP responses by status code",
		}, []string{"code"})
		m.HTTPDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		})
		m.reg.MustRegister(m.TotalHTTPRequestsCounter, m.HTTPResponsesCounter, m.HTTPDurationHistogram)
	}

	if messageMetrics {
		m.MessageMetricCounters = make(map[int]prometheus.Counter, len(messageCounterOpts))
		for idx, opts := range messageCounterOpts {
			opts.Namespace = namespace
			c := prometheus.NewCounter(opts)
			m.reg.MustRegister(c)
			m.MessageMetricCounters[idx] = c
		}
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// AddCustomMetric registers c on the registry. It panics on a duplicate
// registration.
func (m *Metrics) AddCustomMetric(c prometheus.Collector) {
	m.reg.MustRegister(c)
}

// IncrementMessageCounter increments one of the message counters. It is a
// no-op on a nil Metrics or when message metrics are disabled.
func (m *Metrics) IncrementMessageCounter(idx int) {
	if m == nil {
		return
	}
	if c, ok := m.MessageMetricCounters[idx]; ok {
		c.Inc()
	}
}

// IncrementHTTPResponseCounter counts one response with the given status code.
func (m *Metrics) IncrementHTTPResponseCounter(code int) {
	if m.HTTPResponsesCounter == nil {
		return
	}
	m.HTTPResponsesCounter.WithLabelValues(strconv.Itoa(code)).Inc()
}

// HTTPMiddleware records request count, duration and status code. HTTP
// counters must be enabled.
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.TotalHTTPRequestsCounter.Inc()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			m.HTTPDurationHistogram.Observe(time.Since(start).Seconds())
			m.IncrementHTTPResponseCounter(rec.status)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Listen serves /metrics on its own port in the background. Serve errors,
// including http.ErrServerClosed after Stop, arrive on Errors.
func (m *Metrics) Listen(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/", http.NotFoundHandler())

	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	m.errs = make(chan error, 1)

	m.log.Info("Starting metrics listener", logger.IntField("port", port))
	go func(srv *http.Server, errs chan<- error) {
		errs <- srv.ListenAndServe()
	}(m.server, m.errs)
}

// Stop shuts down a listener started with Listen. It is a no-op otherwise.
func (m *Metrics) Stop() {
	if m.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.log.Info("Stopping metrics listener")
	if err := m.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.log.Error("Metrics listener shutdown error", logger.ErrorField(err))
	}
}

// Errors returns the listener error channel, nil when Listen was never called.
func (m *Metrics) Errors() <-chan error {
	return m.errs
}
