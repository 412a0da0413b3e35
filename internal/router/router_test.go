package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lewisedginton/weather_chatbot/internal/weather"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher records lookups and returns a canned result.
type fakeFetcher struct {
	mu     sync.Mutex
	report weather.Report
	err    error
	cities []string
}

func (f *fakeFetcher) Fetch(_ context.Context, city string) (weather.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cities = append(f.cities, city)
	return f.report, f.err
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cities...)
}

func msg(text string) InboundMessage {
	return InboundMessage{Platform: PlatformTelegram, ChatID: "42", UserID: "7", Username: "alice", Text: text}
}

func countKind(actions []Action, kind ActionKind) int {
	n := 0
	for _, a := range actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

func TestRouter_Start(t *testing.T) {
	testCases := []string{"/start", "/start@weather_bot", "/start some args", "  /start  "}

	for _, text := range testCases {
		t.Run(text, func(t *testing.T) {
			fetcher := &fakeFetcher{}
			r := New(fetcher)

			actions := r.Handle(context.Background(), msg(text))

			require.Len(t, actions, 1)
			assert.Equal(t, SendText, actions[0].Kind)
			assert.Equal(t, "42", actions[0].ChatID)
			assert.Contains(t, actions[0].Text, "Привет")
			assert.Contains(t, actions[0].Text, "/help")
			assert.Equal(t, [][]string{{"Справка"}, {"Погода"}}, actions[0].Keyboard)
			assert.Empty(t, fetcher.calls())
		})
	}
}

func TestRouter_StartIsStateless(t *testing.T) {
	fetcher := &fakeFetcher{err: weather.ErrTransport}
	r := New(fetcher)

	first := r.Handle(context.Background(), msg("/start"))
	_ = r.Handle(context.Background(), msg("Paris"))
	_ = r.Handle(context.Background(), msg("/help"))
	second := r.Handle(context.Background(), msg("/start"))

	assert.Equal(t, first, second)
}

func TestRouter_Help(t *testing.T) {
	fetcher := &fakeFetcher{}
	r := New(fetcher)

	actions := r.Handle(context.Background(), msg("/help"))

	require.Len(t, actions, 1)
	assert.Equal(t, SendText, actions[0].Kind)
	assert.Contains(t, actions[0].Text, "/start")
	assert.Contains(t, actions[0].Text, "/help")
	assert.Nil(t, actions[0].Keyboard)
	assert.Empty(t, fetcher.calls())
}

func TestRouter_WeatherSuccess(t *testing.T) {
	fetcher := &fakeFetcher{report: weather.Report{
		Summary: "🌍 Город: London, UK\n🌡 Температура: 15°C",
		IconURL: "http://x.com/icon.png",
	}}
	r := New(fetcher)

	actions := r.Handle(context.Background(), msg("  London  "))

	require.Len(t, actions, 2)
	assert.Equal(t, Action{Kind: SendPhoto, ChatID: "42", PhotoURL: "http://x.com/icon.png"}, actions[0])
	assert.Equal(t, SendText, actions[1].Kind)
	assert.Contains(t, actions[1].Text, "15°C")
	assert.Contains(t, actions[1].Text, "London")
	assert.Equal(t, []string{"London"}, fetcher.calls())
}

func TestRouter_WeatherNotFound(t *testing.T) {
	fetcher := &fakeFetcher{err: fmt.Errorf("provider error: %w", weather.ErrCityNotFound)}
	r := New(fetcher)

	actions := r.Handle(context.Background(), msg("Atlantis"))

	require.Len(t, actions, 1)
	assert.Equal(t, Action{Kind: SendText, ChatID: "42", Text: NotFoundText}, actions[0])
	assert.Zero(t, countKind(actions, SendPhoto))
}

func TestRouter_WeatherTransportErrorIsLoggedNotSurfaced(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(logger.Config{Level: logger.InfoLevel, Format: "json", Output: &buf})

	cause := errors.New("dial tcp 10.0.0.1:80: i/o timeout")
	fetcher := &fakeFetcher{err: fmt.Errorf("%w: %w", weather.ErrTransport, cause)}
	r := New(fetcher, WithLogger(log))

	ctx := logger.WithCorrelationIDContext(context.Background(), "telegram-abc")
	actions := r.Handle(ctx, msg("London"))

	require.Len(t, actions, 1)
	assert.Equal(t, TransportErrorText, actions[0].Text)
	assert.NotContains(t, actions[0].Text, "i/o timeout")

	out := buf.String()
	assert.Contains(t, out, "Weather lookup failed")
	assert.Contains(t, out, "i/o timeout")
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"correlation_id":"telegram-abc"`)
	assert.Contains(t, out, `"chat_id":"42"`)
}

func TestRouter_UnexpectedErrorIsTreatedAsTransport(t *testing.T) {
	r := New(&fakeFetcher{err: errors.New("boom")})

	actions := r.Handle(context.Background(), msg("London"))

	require.Len(t, actions, 1)
	assert.Equal(t, TransportErrorText, actions[0].Text)
}

func TestRouter_FallsThroughToLookup(t *testing.T) {
	testCases := []struct {
		name string
		text string
		city string
	}{
		{"unknown command", "/foo", "/foo"},
		{"case differs", "/Start", "/Start"},
		{"upper case help", "/HELP", "/HELP"},
		{"keyboard help button", "Справка", "Справка"},
		{"keyboard weather button", "Погода", "Погода"},
		{"empty text", "", ""},
		{"lone slash", "/", "/"},
		{"command for another bot", "/start@other_bot", "/start@other_bot"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := &fakeFetcher{err: weather.ErrCityNotFound}
			r := New(fetcher, WithBotUsername("@weather_bot"))

			actions := r.Handle(context.Background(), msg(tc.text))

			require.Len(t, actions, 1)
			assert.Equal(t, NotFoundText, actions[0].Text)
			assert.Equal(t, []string{tc.city}, fetcher.calls())
		})
	}
}

func TestRouter_CommandForThisBot(t *testing.T) {
	fetcher := &fakeFetcher{}
	r := New(fetcher, WithBotUsername("Weather_Bot"))

	actions := r.Handle(context.Background(), msg("/help@weather_bot"))

	require.Len(t, actions, 1)
	assert.Equal(t, HelpText, actions[0].Text)
	assert.Empty(t, fetcher.calls())
}

func TestRouter_SetBotUsername(t *testing.T) {
	fetcher := &fakeFetcher{err: weather.ErrCityNotFound}
	r := New(fetcher)

	// Any mention is accepted until the username is known
	actions := r.Handle(context.Background(), msg("/help@other_bot"))
	assert.Equal(t, HelpText, actions[0].Text)

	r.SetBotUsername("@weather_bot")

	actions = r.Handle(context.Background(), msg("/help@other_bot"))
	assert.Equal(t, NotFoundText, actions[0].Text)
	actions = r.Handle(context.Background(), msg("/help@weather_bot"))
	assert.Equal(t, HelpText, actions[0].Text)
	assert.Equal(t, []string{"/help@other_bot"}, fetcher.calls())
}

func TestRouter_Commands(t *testing.T) {
	assert.Equal(t, []Command{
		{Name: RouteStart, Description: StartDescription},
		{Name: RouteHelp, Description: HelpDescription},
	}, New(nil).Commands())
}

func TestRouter_Idempotent(t *testing.T) {
	fetcher := &fakeFetcher{report: weather.Report{Summary: "summary", IconURL: "http://x.com/icon.png"}}
	r := New(fetcher)

	first := r.Handle(context.Background(), msg("London"))
	second := r.Handle(context.Background(), msg("London"))

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"London", "London"}, fetcher.calls())
}

func TestRouter_WithRealClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("q") != "London" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"location":{"name":"London","country":"UK"},` +
			`"current":{"temp_c":15,"condition":{"text":"Clear","icon":"//x.com/icon.png"},"humidity":60,"wind_kph":10}}`))
	}))
	defer server.Close()

	client := weather.NewClient(weather.Config{APIKey: "k", BaseURL: server.URL, Timeout: time.Second})
	r := New(client)

	actions := r.Handle(context.Background(), msg("London"))
	require.Len(t, actions, 2)
	assert.Equal(t, SendPhoto, actions[0].Kind)
	assert.Equal(t, "http://x.com/icon.png", actions[0].PhotoURL)
	assert.Equal(t, SendText, actions[1].Kind)
	assert.Contains(t, actions[1].Text, "15°C")
	assert.Contains(t, actions[1].Text, "London")

	actions = r.Handle(context.Background(), msg("Atlantis"))
	require.Len(t, actions, 1)
	assert.Equal(t, NotFoundText, actions[0].Text)
	assert.Zero(t, countKind(actions, SendPhoto))
}

func TestRouter_ConcurrentHandle(t *testing.T) {
	fetcher := &fakeFetcher{report: weather.Report{Summary: "s", IconURL: "u"}}
	r := New(fetcher)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actions := r.Handle(context.Background(), InboundMessage{ChatID: fmt.Sprint(i), Text: "Paris"})
			assert.Len(t, actions, 2)
			assert.Equal(t, fmt.Sprint(i), actions[0].ChatID)
		}(i)
	}
	wg.Wait()

	assert.Len(t, fetcher.calls(), 20)
}

func TestRouter_Metrics(t *testing.T) {
	fetcher := &fakeFetcher{err: weather.ErrCityNotFound}
	r := New(fetcher)

	r.Handle(context.Background(), msg("/start"))
	r.Handle(context.Background(), msg("/help"))
	r.Handle(context.Background(), msg("Atlantis"))
	r.Handle(context.Background(), msg("Atlantis"))

	assert.Equal(t, 1.0, messageCount(t, r, RouteStart, "ok"))
	assert.Equal(t, 1.0, messageCount(t, r, RouteHelp, "ok"))
	assert.Equal(t, 2.0, messageCount(t, r, RouteWeather, "not_found"))
	assert.Len(t, r.Collectors(), 2)
}

func messageCount(t *testing.T, r *Router, route, outcome string) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, r.metrics.messages.WithLabelValues(route, outcome).Write(&metric))
	return metric.GetCounter().GetValue()
}
