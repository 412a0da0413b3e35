package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	"github.com/lewisedginton/weather_chatbot/pkg/metrics"
	"github.com/unrolled/secure"
)

// HeartbeatPath answers 200 before any routing.
const HeartbeatPath = "/ping"

// Config selects the middleware ApplyToRouter installs. Logging needs Logger
// and metrics need Metrics with HTTP counters enabled.
type Config struct {
	Logger   logger.Logger
	Metrics  *metrics.Metrics
	CORS     *CORSConfig
	Security *secure.Options // nil uses the secure package defaults
	Timeout  time.Duration

	EnableCorrelationID bool
	EnableLogging       bool
	EnableMetrics       bool
	EnableRecovery      bool
	EnableCORS          bool
	EnableSecurity      bool
	EnableCompression   bool
	EnableHeartbeat     bool
	EnableRealIP        bool
	EnableTimeout       bool
}

// DefaultConfig enables everything that needs no dependency. Logging and
// metrics stay off until Logger and Metrics are set.
func DefaultConfig() Config {
	cors := DefaultCORSConfig()
	return Config{
		CORS:                &cors,
		Timeout:             60 * time.Second,
		EnableCorrelationID: true,
		EnableRecovery:      true,
		EnableCORS:          true,
		EnableSecurity:      true,
		EnableCompression:   true,
		EnableHeartbeat:     true,
		EnableRealIP:        true,
		EnableTimeout:       true,
	}
}

// OpsConfig is the stack for the health and metrics server: logging and
// metrics when their dependency is given, ops security headers, a 10s
// timeout and no compression so scrapes stay plain text.
func OpsConfig(log logger.Logger, m *metrics.Metrics, allowedOrigins []string) Config {
	config := DefaultConfig()
	config.Logger = log
	config.EnableLogging = log != nil
	config.Metrics = m
	config.EnableMetrics = m != nil && m.TotalHTTPRequestsCounter != nil
	config.EnableCompression = false
	config.Timeout = 10 * time.Second
	config.Security = OpsSecurityOptions()

	if len(allowedOrigins) > 0 {
		config.CORS.AllowedOrigins = allowedOrigins
	}
	return config
}

// Middlewares returns the enabled middleware outermost first: correlation ID,
// security headers, real IP, logging, metrics, recovery, CORS, timeout,
// compression and heartbeat.
func Middlewares(config Config) []func(http.Handler) http.Handler {
	stack := []struct {
		on bool
		mw func() func(http.Handler) http.Handler
	}{
		{config.EnableCorrelationID, CorrelationID},
		{config.EnableSecurity, func() func(http.Handler) http.Handler { return Security(config.Security) }},
		{config.EnableRealIP, func() func(http.Handler) http.Handler { return middleware.RealIP }},
		{config.EnableLogging && config.Logger != nil, func() func(http.Handler) http.Handler {
			return NewHTTPLogger(config.Logger).Middleware
		}},
		{config.EnableMetrics && config.Metrics != nil, func() func(http.Handler) http.Handler {
			return config.Metrics.HTTPMiddleware()
		}},
		{config.EnableRecovery, func() func(http.Handler) http.Handler { return middleware.Recoverer }},
		{config.EnableCORS && config.CORS != nil, func() func(http.Handler) http.Handler { return CORS(*config.CORS) }},
		{config.EnableTimeout, func() func(http.Handler) http.Handler { return middleware.Timeout(config.Timeout) }},
		{config.EnableCompression, func() func(http.Handler) http.Handler { return middleware.Compress(5) }},
		{config.EnableHeartbeat, func() func(http.Handler) http.Handler { return middleware.Heartbeat(HeartbeatPath) }},
	}

	var out []func(http.Handler) http.Handler
	for _, s := range stack {
		if s.on {
			out = append(out, s.mw())
		}
	}
	return out
}

// ApplyToRouter installs Middlewares(config) on router. It must run before
// any route is registered.
func ApplyToRouter(router chi.Router, config Config) {
	if mws := Middlewares(config); len(mws) > 0 {
		router.Use(mws...)
	}
}
