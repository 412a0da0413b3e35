// Package router turns inbound chat messages into ordered reply actions.
package router

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lewisedginton/weather_chatbot/internal/weather"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// Route labels.
const (
	RouteStart   = "start"
	RouteHelp    = "help"
	RouteWeather = "weather"
)

// Fetcher looks up the weather for a city. *weather.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, city string) (weather.Report, error)
}

// Router classifies messages and builds replies. It holds no per-message
// state and is safe for concurrent use.
type Router struct {
	fetcher     Fetcher
	commands    *CommandRegistry
	botUsername atomic.Value // string
	log         logger.Logger
	metrics     *routerMetrics
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger. Lookup failures are logged here.
func WithLogger(l logger.Logger) Option {
	return func(r *Router) {
		r.log = l
	}
}

// WithBotUsername makes "/cmd@name" match only when name is this bot.
// Commands addressed to another bot fall through to a weather lookup.
func WithBotUsername(username string) Option {
	return func(r *Router) {
		r.SetBotUsername(username)
	}
}

// SetBotUsername replaces the username set by WithBotUsername. It is safe to
// call while messages are being handled.
func (r *Router) SetBotUsername(username string) {
	r.botUsername.Store(strings.TrimPrefix(username, "@"))
}

// New creates a Router backed by fetcher.
func New(fetcher Fetcher, opts ...Option) *Router {
	r := &Router{
		fetcher: fetcher,
		log:     logger.NewNopLogger(),
		metrics: newRouterMetrics(),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.commands = NewCommandRegistry()
	r.commands.Register(RouteStart, StartDescription, r.handleStart)
	r.commands.Register(RouteHelp, HelpDescription, r.handleHelp)

	return r
}

// Commands lists the slash commands the router answers, for transports
// that advertise them.
func (r *Router) Commands() []Command {
	return r.commands.Commands()
}

// Collectors returns the router's Prometheus collectors for registration.
func (r *Router) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.metrics.messages, r.metrics.duration}
}

// Handle returns the replies for msg, in the order they must be sent.
// It never returns an empty slice.
func (r *Router) Handle(ctx context.Context, msg InboundMessage) []Action {
	start := time.Now()

	if cmd, mention, args, ok := parseCommand(msg.Text); ok && r.addressedToUs(mention) {
		if handler, found := r.commands.Lookup(cmd); found {
			actions := handler(ctx, msg, args)
			r.observe(cmd, weather.ReasonNone, start)
			return actions
		}
	}

	return r.lookup(ctx, msg, start)
}

func (r *Router) addressedToUs(mention string) bool {
	username, _ := r.botUsername.Load().(string)
	return mention == "" || username == "" || strings.EqualFold(mention, username)
}

func (r *Router) handleStart(_ context.Context, msg InboundMessage, _ string) []Action {
	action := textAction(msg.ChatID, WelcomeText)
	action.Keyboard = WelcomeKeyboard()
	return []Action{action}
}

func (r *Router) handleHelp(_ context.Context, msg InboundMessage, _ string) []Action {
	return []Action{textAction(msg.ChatID, HelpText)}
}

func (r *Router) lookup(ctx context.Context, msg InboundMessage, start time.Time) []Action {
	city := strings.TrimSpace(msg.Text)

	report, err := r.fetcher.Fetch(ctx, city)
	reason := weather.Reason(err)
	r.observe(RouteWeather, reason, start)

	switch reason {
	case weather.ReasonNone:
		return []Action{
			photoAction(msg.ChatID, report.IconURL),
			textAction(msg.ChatID, report.Summary),
		}
	case weather.ReasonNotFound:
		logger.GetLoggerFromContext(ctx, r.log).Info("City not found",
			logger.PlatformField(msg.Platform),
			logger.ChatIDField(msg.ChatID),
			logger.StringField("city", city),
		)
		return []Action{textAction(msg.ChatID, NotFoundText)}
	default:
		logger.GetLoggerFromContext(ctx, r.log).Error("Weather lookup failed",
			logger.RouteField(RouteWeather),
			logger.PlatformField(msg.Platform),
			logger.ChatIDField(msg.ChatID),
			logger.UserIDField(msg.UserID),
			logger.StringField("city", city),
			logger.ErrorField(err),
		)
		return []Action{textAction(msg.ChatID, TransportErrorText)}
	}
}

func (r *Router) observe(route string, reason weather.FailureReason, start time.Time) {
	r.metrics.messages.WithLabelValues(route, reason.String()).Inc()
	r.metrics.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}
