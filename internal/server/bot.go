package server

import (
	appconfig "github.com/lewisedginton/weather_chatbot/internal/config"
	"github.com/lewisedginton/weather_chatbot/internal/middleware"
	"github.com/lewisedginton/weather_chatbot/internal/router"
	"github.com/lewisedginton/weather_chatbot/internal/weather"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	"github.com/lewisedginton/weather_chatbot/pkg/metrics"
)

// Bot is the transport-independent part of the application: the weather
// client, the router and the message middleware chain around it.
type Bot struct {
	Weather *weather.Client
	Router  *router.Router
	Handler middleware.Handler
}

// NewBot builds the message pipeline from cfg. Collectors of the weather
// client and router are registered on m when it is not nil.
func NewBot(cfg *appconfig.AppConfig, log logger.Logger, m *metrics.Metrics) *Bot {
	client := weather.NewClient(cfg.Weather.ClientConfig(), weather.WithLogger(log))

	r := router.New(client,
		router.WithLogger(log),
		router.WithBotUsername(cfg.Bot.Username),
	)

	if m != nil {
		for _, c := range client.Collectors() {
			m.AddCustomMetric(c)
		}
		for _, c := range r.Collectors() {
			m.AddCustomMetric(c)
		}
	}

	recovery := middleware.DefaultRecoveryConfig()
	recovery.Logger = log
	recovery.Metrics = m
	recovery.EnableStackTrace = !cfg.Bot.DisableStackTrace

	return &Bot{
		Weather: client,
		Router:  r,
		Handler: middleware.Default(log, recovery, cfg.Bot.HandlerTimeout)(r),
	}
}
