// Package monitoring wires the bot's health checks and exposes them over HTTP.
package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lewisedginton/weather_chatbot/pkg/health"
	"github.com/lewisedginton/weather_chatbot/pkg/health/checkers"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
)

// Health status constants
const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusReady     = "ready"
	statusNotReady  = "not_ready"
)

var errShuttingDown = errors.New("shutting down")

// HealthMonitor manages health checks and monitoring endpoints for the application
type HealthMonitor struct {
	checker      *health.Checker
	logger       logger.Logger
	version      string
	startTime    time.Time
	shuttingDown atomic.Bool
}

// Config holds configuration for the health monitor
type Config struct {
	Logger  logger.Logger
	Version string

	// WeatherCheck probes the weather provider. Optional.
	WeatherCheck health.Check

	// Connectors are reported by name as readiness checks.
	Connectors map[string]checkers.Readier

	Timeout          time.Duration // Health check timeout
	FailureThreshold int           // Number of consecutive failures before reporting unhealthy
}

// Paths holds the routes the health handlers are mounted on.
type Paths struct {
	Liveness  string
	Readiness string
	Combined  string
}

// NewHealthMonitor creates a new health monitor with configured checks
func NewHealthMonitor(cfg Config) *HealthMonitor {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	failureThreshold := cfg.FailureThreshold
	if failureThreshold == 0 {
		failureThreshold = 3
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	hm := &HealthMonitor{
		checker: health.New(
			health.WithLogger(log),
			health.WithTimeout(timeout),
			health.WithFailureThreshold(failureThreshold),
		),
		logger:    log,
		version:   version,
		startTime: time.Now(),
	}

	hm.checker.Register(health.Liveness, health.NewCheckFunc("process", func(ctx context.Context) error {
		return nil
	}))

	hm.checker.Register(health.Readiness, health.NewCheckFunc("shutdown", func(ctx context.Context) error {
		if hm.shuttingDown.Load() {
			return errShuttingDown
		}
		return nil
	}))

	if cfg.WeatherCheck != nil {
		hm.checker.Register(health.Readiness, cfg.WeatherCheck)
	}

	// Sorted so check order in responses is stable
	names := make([]string, 0, len(cfg.Connectors))
	for name := range cfg.Connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		hm.checker.Register(health.Readiness, checkers.NewReadyChecker(name+"_connector", cfg.Connectors[name]))
	}

	return hm
}

// MarkShuttingDown makes readiness fail so load balancers stop routing to
// the instance while connectors drain.
func (hm *HealthMonitor) MarkShuttingDown() {
	hm.shuttingDown.Store(true)
}

// probeResponse is the body of every health endpoint. Combined responses
// nest one probeResponse per probe.
type probeResponse struct {
	Status    string               `json:"status"`
	Timestamp string               `json:"timestamp,omitempty"`
	Uptime    string               `json:"uptime,omitempty"`
	Version   string               `json:"version,omitempty"`
	Error     string               `json:"error,omitempty"`
	Checks    []health.CheckResult `json:"checks,omitempty"`
	Liveness  *probeResponse       `json:"liveness,omitempty"`
	Readiness *probeResponse       `json:"readiness,omitempty"`
}

func (hm *HealthMonitor) probe(r *http.Request, p health.Probe) (*probeResponse, error) {
	report, err := hm.checker.Run(r.Context(), p)
	// Shutdown must fail readiness on the first probe, not after the threshold.
	if err == nil && p == health.Readiness && hm.shuttingDown.Load() {
		err = fmt.Errorf("health checks failed: shutdown: %w", errShuttingDown)
	}
	resp := &probeResponse{Checks: report.Checks}
	switch {
	case err != nil && p == health.Liveness:
		resp.Status, resp.Error = statusUnhealthy, err.Error()
	case err != nil:
		resp.Status, resp.Error = statusNotReady, err.Error()
	case p == health.Liveness:
		resp.Status = statusHealthy
	default:
		resp.Status = statusReady
	}
	return resp, err
}

func (hm *HealthMonitor) stamp(resp *probeResponse) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)
	resp.Uptime = time.Since(hm.startTime).String()
}

// LivenessHandler serves the liveness probe: 200 while the process is alive.
func (hm *HealthMonitor) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := hm.probe(r, health.Liveness)
		hm.stamp(resp)
		if err != nil {
			hm.logger.Error("Liveness check failed", logger.ErrorField(err))
		}
		hm.writeJSON(w, statusCode(err), resp)
	}
}

// ReadinessHandler serves the readiness probe: 200 when the connectors are
// up, the weather provider answers and shutdown has not started.
func (hm *HealthMonitor) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := hm.probe(r, health.Readiness)
		hm.stamp(resp)
		if err != nil {
			hm.logger.Warn("Readiness check failed", logger.ErrorField(err))
		}
		hm.writeJSON(w, statusCode(err), resp)
	}
}

// HealthHandler reports both probes together with the build version.
func (hm *HealthMonitor) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		live, liveErr := hm.probe(r, health.Liveness)
		ready, readyErr := hm.probe(r, health.Readiness)

		resp := &probeResponse{Status: statusHealthy, Version: hm.version, Liveness: live, Readiness: ready}
		hm.stamp(resp)

		err := liveErr
		if err == nil {
			err = readyErr
		}
		if err != nil {
			resp.Status = statusUnhealthy
		}
		hm.writeJSON(w, statusCode(err), resp)
	}
}

func statusCode(err error) int {
	if err != nil {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func (hm *HealthMonitor) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		hm.logger.Error("Failed to encode health response", logger.ErrorField(err))
	}
}

// RegisterHandlers registers all health check endpoints on the router
func (hm *HealthMonitor) RegisterHandlers(r chi.Router, paths Paths) {
	r.Get(paths.Combined, hm.HealthHandler())
	r.Get(paths.Liveness, hm.LivenessHandler())
	r.Get(paths.Readiness, hm.ReadinessHandler())
}
