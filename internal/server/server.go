// Package server provides the main server implementation for the weather bot.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	appconfig "github.com/lewisedginton/weather_chatbot/internal/config"
	"github.com/lewisedginton/weather_chatbot/internal/connectors/slack"
	"github.com/lewisedginton/weather_chatbot/internal/connectors/telegram"
	"github.com/lewisedginton/weather_chatbot/internal/monitoring"
	"github.com/lewisedginton/weather_chatbot/pkg/health/checkers"
	"github.com/lewisedginton/weather_chatbot/pkg/httpmiddleware"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	"github.com/lewisedginton/weather_chatbot/pkg/metrics"
	"github.com/lewisedginton/weather_chatbot/pkg/utils"
)

const (
	shutdownTimeout  = 5 * time.Second
	forceExitTimeout = 30 * time.Second
)

// Connector defines the interface for platform connectors
type Connector interface {
	Start(ctx context.Context) error
	Stop() error
	Ready() error
}

type namedConnector struct {
	name string
	conn Connector
}

// Server encapsulates all the bot components and lifecycle management
type Server struct {
	cfg        *appconfig.AppConfig
	log        logger.Logger
	metrics    *metrics.Metrics
	bot        *Bot
	connectors []namedConnector
	health     *monitoring.HealthMonitor
	ops        *http.Server

	extraConnectors []namedConnector
}

// Option configures a Server.
type Option func(*Server)

// WithConnector adds a connector alongside those enabled in the config.
func WithConnector(name string, c Connector) Option {
	return func(s *Server) {
		s.extraConnectors = append(s.extraConnectors, namedConnector{name: name, conn: c})
	}
}

// New creates a new Server instance with all components initialized
func New(cfg *appconfig.AppConfig, log logger.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		cfg: cfg,
		log: log,
	}
	for _, opt := range opts {
		opt(s)
	}

	m := metrics.NewMetrics(cfg.Metrics.EnableHTTPMetrics, cfg.Metrics.EnableMessageMetrics, log)
	s.metrics = &m

	s.bot = NewBot(cfg, log, s.metrics)

	if err := s.createConnectors(); err != nil {
		return nil, err
	}
	if len(s.connectors) == 0 {
		return nil, fmt.Errorf("no connectors configured: please set environment variables for at least one platform (Telegram or Slack)")
	}

	readiers := make(map[string]checkers.Readier, len(s.connectors))
	for _, nc := range s.connectors {
		readiers[nc.name] = nc.conn
	}
	s.health = monitoring.NewHealthMonitor(monitoring.Config{
		Logger:           log,
		Version:          cfg.Version,
		WeatherCheck:     s.bot.Weather.HealthCheck(),
		Connectors:       readiers,
		Timeout:          cfg.Health.Timeout,
		FailureThreshold: cfg.Health.FailureThreshold,
	})

	if cfg.Health.Enabled {
		s.ops = &http.Server{
			Addr:              cfg.HTTP.Addr(),
			Handler:           s.OpsHandler(),
			ReadTimeout:       cfg.HTTP.ReadTimeout(),
			ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout(),
			WriteTimeout:      cfg.HTTP.WriteTimeout(),
			IdleTimeout:       cfg.HTTP.IdleTimeout(),
			MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
		}
	}

	return s, nil
}

func (s *Server) createConnectors() error {
	if s.cfg.Telegram.Enabled() {
		tc, err := telegram.NewConnector(telegram.Config{
			BotToken:       s.cfg.Telegram.BotToken,
			Debug:          s.cfg.Telegram.Debug,
			HandlerTimeout: s.cfg.Bot.HandlerTimeout,
		}, s.bot.Handler, s.telegramOptions()...)
		if err != nil {
			return fmt.Errorf("failed to create Telegram connector: %w", err)
		}
		s.connectors = append(s.connectors, namedConnector{name: "telegram", conn: tc})
	} else {
		s.log.Info("Telegram connector disabled (missing TELEGRAM_BOT_TOKEN)")
	}

	if s.cfg.Slack.Enabled() {
		sc, err := slack.NewConnector(slack.Config{
			BotToken:       s.cfg.Slack.BotToken,
			AppToken:       s.cfg.Slack.AppToken,
			Debug:          s.cfg.Slack.Debug,
			HandlerTimeout: s.cfg.Bot.HandlerTimeout,
		}, s.bot.Handler, slack.WithLogger(s.log), slack.WithMetrics(s.metrics))
		if err != nil {
			return fmt.Errorf("failed to create Slack connector: %w", err)
		}
		s.connectors = append(s.connectors, namedConnector{name: "slack", conn: sc})
	} else {
		s.log.Info("Slack connector disabled (missing SLACK_BOT_TOKEN or SLACK_APP_TOKEN)")
	}

	s.connectors = append(s.connectors, s.extraConnectors...)
	return nil
}

func (s *Server) telegramOptions() []telegram.Option {
	opts := []telegram.Option{
		telegram.WithLogger(s.log),
		telegram.WithMetrics(s.metrics),
		telegram.WithCommands(s.bot.Router.Commands()),
	}
	if s.cfg.Bot.Username == "" {
		opts = append(opts, telegram.WithOnIdentified(s.bot.Router.SetBotUsername))
	}
	return opts
}

// Bot returns the message pipeline shared by all connectors.
func (s *Server) Bot() *Bot {
	return s.bot
}

// OpsHandler returns the router serving health probes and, when it shares
// the port, /metrics.
func (s *Server) OpsHandler() http.Handler {
	r := chi.NewRouter()
	httpmiddleware.ApplyToRouter(r, httpmiddleware.OpsConfig(s.log, s.metrics, s.cfg.Security.CORSAllowedOrigins))

	s.health.RegisterHandlers(r, monitoring.Paths{
		Liveness:  s.cfg.Health.LivenessPath,
		Readiness: s.cfg.Health.ReadinessPath,
		Combined:  s.cfg.Health.CombinedPath,
	})

	if s.cfg.MetricsOnOpsServer() {
		r.Handle("/metrics", s.metrics.Handler())
	}

	return r
}

// Serve runs the server until SIGINT or SIGTERM.
func (s *Server) Serve() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.setupGracefulShutdown(cancel)

	return s.Run(ctx)
}

// Run starts the ops endpoints and every connector, then blocks until ctx is
// cancelled or a component fails. In-flight messages are drained before it
// returns.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var listenerErrs []<-chan error
	if s.ops != nil {
		listenerErrs = append(listenerErrs, s.startOpsServer())
	}
	if s.cfg.Metrics.ExposeMetrics && !s.cfg.MetricsOnOpsServer() {
		s.metrics.Listen(s.cfg.Metrics.Port)
		listenerErrs = append(listenerErrs, s.metrics.Errors())
	}

	var merged <-chan error
	if len(listenerErrs) > 0 {
		merged = utils.MergeErrorChans(listenerErrs...)
	}

	var wg sync.WaitGroup
	connectorErrs := make(chan error, len(s.connectors))
	for _, nc := range s.connectors {
		wg.Add(1)
		go func(nc namedConnector) {
			defer wg.Done()
			s.log.Info("Starting connector", logger.StringField("connector", nc.name))
			if err := nc.conn.Start(ctx); err != nil {
				connectorErrs <- fmt.Errorf("%s connector: %w", nc.name, err)
			}
		}(nc)
	}

	s.log.Info("Bot started",
		logger.StringField("service", s.cfg.ServiceName),
		logger.StringField("version", s.cfg.Version),
		logger.IntField("connectors", len(s.connectors)),
	)

	runErr := s.wait(ctx, connectorErrs, merged)

	s.log.Info("Shutting down")
	s.health.MarkShuttingDown()
	cancel()
	wg.Wait()

	for _, nc := range s.connectors {
		if err := nc.conn.Stop(); err != nil {
			s.log.Warn("Connector stop failed",
				logger.StringField("connector", nc.name),
				logger.ErrorField(err),
			)
		}
	}

	s.stopListeners()
	s.log.Info("All connectors stopped")

	return runErr
}

func (s *Server) wait(ctx context.Context, connectorErrs <-chan error, listenerErrs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-connectorErrs:
			s.log.Error("Connector failed", logger.ErrorField(err))
			return err
		case err, ok := <-listenerErrs:
			if !ok {
				listenerErrs = nil
				continue
			}
			s.log.Error("Listener failed", logger.ErrorField(err))
			return fmt.Errorf("listener failed: %w", err)
		}
	}
}

// startOpsServer serves health and metrics endpoints in the background. The
// returned channel carries a listen failure and is closed when the server
// stops.
func (s *Server) startOpsServer() <-chan error {
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		s.log.Info("Ops server listening",
			logger.StringField("addr", s.ops.Addr),
			logger.StringField("liveness_path", s.cfg.Health.LivenessPath),
			logger.StringField("readiness_path", s.cfg.Health.ReadinessPath),
		)
		if err := s.ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	return errs
}

func (s *Server) stopListeners() {
	if s.ops != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.ops.Shutdown(shutdownCtx); err != nil {
			s.log.Error("Ops server shutdown error", logger.ErrorField(err))
		}
	}
	s.metrics.Stop()
}

// setupGracefulShutdown sets up signal handling for graceful shutdown
func (s *Server) setupGracefulShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		s.log.Info("Received shutdown signal", logger.StringField("signal", sig.String()))

		cancel()

		// Give in-flight messages time to finish, then force exit
		time.AfterFunc(forceExitTimeout, func() {
			s.log.Warn("Force exiting due to timeout")
			os.Exit(1)
		})
	}()
}
