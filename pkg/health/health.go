// Package health runs liveness and readiness checks with a consecutive
// failure threshold.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lewisedginton/weather_chatbot/pkg/logger"
)

// Check is a single named probe. Check returns nil when healthy.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Check.
type CheckFunc struct {
	name string
	fn   func(context.Context) error
}

// NewCheckFunc creates a CheckFunc with the given name.
func NewCheckFunc(name string, fn func(context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name returns the check name.
func (c *CheckFunc) Name() string { return c.name }

// Check calls the wrapped function.
func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// Probe selects which set of checks to run.
type Probe int

const (
	// Liveness checks decide whether the process should be restarted.
	Liveness Probe = iota
	// Readiness checks decide whether the process should receive traffic.
	Readiness
)

// Per-check statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// CheckResult is the outcome of one check run. A check failing fewer times
// in a row than the threshold is still Healthy but Degraded.
type CheckResult struct {
	Name     string        `json:"name"`
	Healthy  bool          `json:"-"`
	Error    string        `json:"error,omitempty"`
	Failures int           `json:"failures,omitempty"`
	Latency  time.Duration `json:"-"`
}

// Degraded reports a failing check still within its failure threshold.
func (r CheckResult) Degraded() bool {
	return r.Healthy && r.Error != ""
}

// Status returns StatusOK, StatusDegraded or StatusError.
func (r CheckResult) Status() string {
	switch {
	case r.Degraded():
		return StatusDegraded
	case r.Healthy:
		return StatusOK
	default:
		return StatusError
	}
}

// MarshalJSON adds the status and a readable latency.
func (r CheckResult) MarshalJSON() ([]byte, error) {
	type plain CheckResult
	return json.Marshal(struct {
		plain
		Status  string `json:"status"`
		Latency string `json:"latency"`
	}{plain(r), r.Status(), r.Latency.String()})
}

// Report aggregates the results of one probe run.
type Report struct {
	Healthy bool
	Checks  []CheckResult
}

// Failed returns the names of unhealthy checks.
func (r Report) Failed() []string {
	var names []string
	for _, c := range r.Checks {
		if !c.Healthy {
			names = append(names, c.Name)
		}
	}
	return names
}

// Checker holds registered checks and their consecutive failure counts.
type Checker struct {
	mu        sync.Mutex
	checks    map[Probe][]Check
	failures  map[string]int
	timeout   time.Duration
	threshold int
	log       logger.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout bounds each check run. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithFailureThreshold sets how many consecutive failures make a check
// unhealthy. Default 3; values below 1 are ignored.
func WithFailureThreshold(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithLogger sets the logger used for check outcomes.
func WithLogger(l logger.Logger) Option {
	return func(c *Checker) {
		c.log = l
	}
}

// New creates a Checker with no checks registered.
func New(opts ...Option) *Checker {
	c := &Checker{
		checks:    make(map[Probe][]Check),
		failures:  make(map[string]int),
		timeout:   5 * time.Second,
		threshold: 3,
		log:       logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds check to probe. Checks run in registration order.
func (c *Checker) Register(probe Probe, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[probe] = append(c.checks[probe], check)
}

// Run executes every check of the given probes concurrently. The error
// names the failed checks when the report is unhealthy.
func (c *Checker) Run(ctx context.Context, probes ...Probe) (Report, error) {
	c.mu.Lock()
	var checks []Check
	for _, p := range probes {
		checks = append(checks, c.checks[p]...)
	}
	c.mu.Unlock()

	report := Report{Healthy: true, Checks: make([]CheckResult, len(checks))}

	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			report.Checks[i] = c.run(ctx, check)
		}(i, check)
	}
	wg.Wait()

	failed := report.Failed()
	if len(failed) == 0 {
		return report, nil
	}
	report.Healthy = false
	return report, fmt.Errorf("health checks failed: %s", strings.Join(failed, ", "))
}

func (c *Checker) run(parent context.Context, check Check) CheckResult {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	start := time.Now()
	err := check.Check(ctx)
	result := CheckResult{Name: check.Name(), Healthy: true, Latency: time.Since(start)}

	c.mu.Lock()
	if err == nil {
		c.failures[result.Name] = 0
	} else {
		c.failures[result.Name]++
		result.Failures = c.failures[result.Name]
	}
	c.mu.Unlock()

	fields := []logger.LogField{
		logger.StringField("check", result.Name),
		logger.DurationField("latency", result.Latency),
	}
	if err == nil {
		c.log.Debug("Health check passed", fields...)
		return result
	}

	result.Error = err.Error()
	fields = append(fields, logger.ErrorField(err), logger.IntField("failures", result.Failures))
	if result.Failures < c.threshold {
		c.log.Debug("Health check failed below threshold", append(fields, logger.IntField("threshold", c.threshold))...)
		return result
	}

	result.Healthy = false
	c.log.Warn("Health check failed", fields...)
	return result
}
