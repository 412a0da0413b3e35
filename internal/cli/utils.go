package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	appconfig "github.com/lewisedginton/weather_chatbot/internal/config"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
)

// getLogger retrieves the logger from the CLI context metadata
func getLogger(ctx *cli.Context) logger.Logger {
	if ctx.App.Metadata != nil {
		if log, ok := ctx.App.Metadata["logger"].(logger.Logger); ok {
			return log
		}
	}

	// Fallback to default logger if not found
	return logger.NewLogger(logger.Config{
		Level:   logger.InfoLevel,
		Format:  "json",
		Service: "weather-bot",
		Output:  ctx.App.ErrWriter,
	})
}

// loadConfig loads the application configuration from the --config-file
// path and environment variables. Logging flags given on the command line
// take precedence over the file.
func loadConfig(ctx *cli.Context) (appconfig.AppConfig, error) {
	cfg, err := appconfig.Load(ctx.String("config-file"))
	if err != nil {
		return appconfig.AppConfig{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	if ctx.IsSet("log-level") {
		cfg.Logging.LogLevel = ctx.String("log-level")
	}
	if ctx.IsSet("log-format") {
		cfg.Logging.LogFormat = ctx.String("log-format")
	}
	return cfg, nil
}

// configLogger builds the logger described by cfg, writing to the app's
// error stream so command output on stdout stays clean.
func configLogger(ctx *cli.Context, cfg appconfig.AppConfig) logger.Logger {
	lc := cfg.LoggerConfig()
	lc.Output = ctx.App.ErrWriter
	return logger.NewLogger(lc)
}
