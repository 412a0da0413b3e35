package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	appconfig "github.com/lewisedginton/weather_chatbot/internal/config"
	"github.com/lewisedginton/weather_chatbot/internal/router"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const parisBody = `{
	"location": {"name": "Paris", "country": "France"},
	"current": {
		"temp_c": 21.5,
		"condition": {"text": "Sunny", "icon": "//cdn.weatherapi.com/113.png"},
		"humidity": 40,
		"wind_kph": 7
	}
}`

// fakeConnector blocks in Start until cancelled, or fails with startErr.
type fakeConnector struct {
	startErr error
	started  atomic.Bool
	stopped  atomic.Bool
}

func (f *fakeConnector) Start(ctx context.Context) error {
	f.started.Store(true)
	if f.startErr != nil {
		return f.startErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConnector) Stop() error {
	f.stopped.Store(true)
	return nil
}

func (f *fakeConnector) Ready() error {
	if !f.started.Load() {
		return errors.New("not started")
	}
	return nil
}

func weatherServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "Atlantis" {
			_, _ = w.Write([]byte(`{"error": {"code": 1006, "message": "No matching location found."}}`))
			return
		}
		_, _ = w.Write([]byte(parisBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) *appconfig.AppConfig {
	t.Helper()
	cfg := &appconfig.AppConfig{ServiceName: "weather-bot", Version: "test"}
	cfg.Weather = appconfig.WeatherConfig{
		APIKey:     "key",
		BaseURL:    weatherServer(t).URL,
		Lang:       "ru",
		Timeout:    2 * time.Second,
		IconScheme: "http:",
	}
	cfg.Bot.HandlerTimeout = 5 * time.Second
	cfg.Health = appconfig.HealthConfig{
		LivenessPath:     "/health/live",
		ReadinessPath:    "/health/ready",
		CombinedPath:     "/health",
		Timeout:          time.Second,
		FailureThreshold: 1,
	}
	cfg.HTTP.Port = 8080
	cfg.Metrics.Port = 8080
	return cfg
}

func TestNewRequiresConnector(t *testing.T) {
	_, err := New(testConfig(t), logger.NewNopLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no connectors configured")
}

func TestBotPipeline(t *testing.T) {
	s, err := New(testConfig(t), logger.NewNopLogger(), WithConnector("fake", &fakeConnector{}))
	require.NoError(t, err)

	actions := s.Bot().Handler.Handle(context.Background(), router.InboundMessage{
		Platform: router.PlatformConsole,
		ChatID:   "1",
		Text:     "  Paris ",
	})

	require.Len(t, actions, 2)
	assert.Equal(t, router.SendPhoto, actions[0].Kind)
	assert.Equal(t, "http://cdn.weatherapi.com/113.png", actions[0].PhotoURL)
	assert.Equal(t, router.SendText, actions[1].Kind)
	assert.Contains(t, actions[1].Text, "🌍 Город: Paris, France")
	assert.Contains(t, actions[1].Text, "🌡 Температура: 21.5°C")

	actions = s.Bot().Handler.Handle(context.Background(), router.InboundMessage{ChatID: "1", Text: "Atlantis"})
	require.Len(t, actions, 1)
	assert.Equal(t, router.NotFoundText, actions[0].Text)
}

func TestTelegramOptionsFollowConfiguredUsername(t *testing.T) {
	s, err := New(testConfig(t), logger.NewNopLogger(), WithConnector("fake", &fakeConnector{}))
	require.NoError(t, err)

	// Logger, metrics, command menu and username discovery
	assert.Len(t, s.telegramOptions(), 4)

	s.cfg.Bot.Username = "weather_bot"
	assert.Len(t, s.telegramOptions(), 3)
}

func TestOpsHandler(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.ExposeMetrics = true
	cfg.Metrics.EnableHTTPMetrics = true
	cfg.Metrics.EnableMessageMetrics = true
	cfg.Health.Enabled = true

	conn := &fakeConnector{}
	s, err := New(cfg, logger.NewNopLogger(), WithConnector("fake", conn))
	require.NoError(t, err)
	h := s.OpsHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(logger.CorrelationIDHeader))

	// Connector not started yet
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	conn.started.Store(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	s.Bot().Handler.Handle(context.Background(), router.InboundMessage{ChatID: "1", Text: "Paris"})

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `weather_api_requests_total{outcome="ok"} 1`)
	assert.Contains(t, body, `bot_messages_total{outcome="ok",route="weather"} 1`)
	assert.Contains(t, body, "bot_http_requests_total")
}

func TestOpsHandlerWithoutSharedMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Port = 9090
	cfg.Metrics.ExposeMetrics = true

	s, err := New(cfg, logger.NewNopLogger(), WithConnector("fake", &fakeConnector{}))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.OpsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(logger.Config{Level: logger.InfoLevel, Output: &syncWriter{buf: &buf}})

	conn := &fakeConnector{}
	s, err := New(testConfig(t), log, WithConnector("fake", conn))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, conn.started.Load, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, conn.stopped.Load())

	out := buf.String()
	assert.Contains(t, out, "Bot started")
	assert.Contains(t, out, "All connectors stopped")
}

func TestRunReturnsConnectorError(t *testing.T) {
	failing := &fakeConnector{startErr: errors.New("unauthorized")}
	healthy := &fakeConnector{}
	s, err := New(testConfig(t), logger.NewNopLogger(),
		WithConnector("broken", failing),
		WithConnector("fake", healthy),
	)
	require.NoError(t, err)

	err = s.Run(context.Background())

	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "broken connector"))
	assert.ErrorContains(t, err, "unauthorized")
	assert.True(t, healthy.stopped.Load())
}
