// Package config defines the weather bot's application configuration.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"
	pkgconfig "github.com/lewisedginton/weather_chatbot/pkg/config"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
)

// AppConfig holds all application configuration
type AppConfig struct {
	// Service configuration
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"weather-bot"`
	Version     string `env:"VERSION" yaml:"version" default:"dev"`
	Environment string `env:"ENVIRONMENT" yaml:"environment" default:"development"`

	// Transports
	Telegram TelegramConfig `yaml:"telegram"`
	Slack    SlackConfig    `yaml:"slack"`

	Weather WeatherConfig `yaml:"weather"`
	Bot     BotConfig     `yaml:"bot"`

	// Logging configuration
	Logging pkgconfig.CommonConfig `yaml:"logging"`

	// Ops endpoints
	HTTP     pkgconfig.HTTPServerConfig `yaml:"http"`
	Health   HealthConfig               `yaml:"health"`
	Metrics  pkgconfig.MetricsConfig    `yaml:"metrics"`
	Security SecurityConfig             `yaml:"security"`
}

// SecurityConfig holds security-related configuration for the ops server
type SecurityConfig struct {
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" yaml:"cors_allowed_origins"`
}

// Load reads the optional YAML file at path, overlays environment variables
// and validates the result.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	if err := pkgconfig.GetConfig(&cfg, path, false); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid.
// Transports are checked separately by RequireTransport since one-off
// lookups run without them.
func (c AppConfig) Validate() error {
	var result error

	if err := c.Logging.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	if c.Weather.APIKey == "" {
		result = multierror.Append(result, fmt.Errorf("weather api_key is required (WEATHER_API_KEY)"))
	}
	if u, err := url.Parse(c.Weather.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("weather base_url must be an absolute http(s) URL, got %q", c.Weather.BaseURL))
	}
	if c.Weather.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("weather timeout must be greater than 0"))
	}

	if c.Bot.HandlerTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("bot handler_timeout must be greater than 0"))
	}

	if err := c.Telegram.validate(); err != nil {
		result = multierror.Append(result, err)
	}

	if c.Slack.partial() {
		result = multierror.Append(result, fmt.Errorf("slack requires both bot_token and app_token"))
	}

	if c.Health.Enabled {
		if err := c.HTTP.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
		if c.Health.Timeout <= 0 {
			result = multierror.Append(result, fmt.Errorf("health timeout must be greater than 0"))
		}
		if c.Health.FailureThreshold < 1 {
			result = multierror.Append(result, fmt.Errorf("health failure_threshold must be at least 1"))
		}
	}

	if err := c.Metrics.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	return result
}

// RequireTransport returns an error unless at least one messaging transport
// is configured.
func (c AppConfig) RequireTransport() error {
	if !c.Telegram.Enabled() && !c.Slack.Enabled() {
		return fmt.Errorf("no transport configured: set TELEGRAM_BOT_TOKEN or SLACK_BOT_TOKEN and SLACK_APP_TOKEN")
	}
	return nil
}

// GetLogLevel returns the parsed logger level
func (c AppConfig) GetLogLevel() logger.Level {
	return logger.ParseLevel(c.Logging.LogLevel)
}

// LoggerConfig returns the logger settings for this configuration. Without
// an explicit log format, development gets text and everything else JSON.
func (c AppConfig) LoggerConfig() logger.Config {
	format := strings.ToLower(c.Logging.LogFormat)
	if format == "" {
		format = "json"
		if c.IsDevelopment() {
			format = "text"
		}
	}
	return logger.Config{
		Level:   c.GetLogLevel(),
		Format:  format,
		Service: c.ServiceName,
	}
}

// IsDevelopment returns true if running in development environment
func (c AppConfig) IsDevelopment() bool {
	env := strings.ToLower(c.Environment)
	return env == "development" || env == "dev"
}

// MetricsOnOpsServer reports whether /metrics shares the ops server port.
func (c AppConfig) MetricsOnOpsServer() bool {
	return c.Metrics.ExposeMetrics && c.Health.Enabled && c.Metrics.Port == c.HTTP.Port
}

// LogConfig logs the current configuration (without sensitive data)
func (c AppConfig) LogConfig(log logger.Logger) {
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.ServiceName),
		logger.StringField("version", c.Version),
		logger.StringField("environment", c.Environment),
		logger.BoolField("telegram_enabled", c.Telegram.Enabled()),
		logger.BoolField("slack_enabled", c.Slack.Enabled()),
		logger.StringField("weather_base_url", c.Weather.BaseURL),
		logger.StringField("weather_lang", c.Weather.Lang),
		logger.DurationField("weather_timeout", c.Weather.Timeout),
		logger.DurationField("handler_timeout", c.Bot.HandlerTimeout),
		logger.StringField("log_level", c.Logging.LogLevel),
		logger.StringField("log_format", c.LoggerConfig().Format),
		logger.BoolField("health_enabled", c.Health.Enabled),
		logger.IntField("http_port", c.HTTP.Port),
		logger.BoolField("metrics_exposed", c.Metrics.ExposeMetrics),
		logger.IntField("metrics_port", c.Metrics.Port),
	)
}
