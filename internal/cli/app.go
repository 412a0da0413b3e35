// Package cli implements the weather-bot command line.
package cli

import (
	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/weather_chatbot/pkg/logger"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// NewApp returns the weather-bot command line application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "weather-bot",
		Usage:   "Telegram and Slack bot answering with the current weather",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "",
				Usage:   "Log format (json, text)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "config-file",
				Value:   "",
				Usage:   "Path to configuration file",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: func(ctx *cli.Context) error {
			log := logger.NewLogger(logger.Config{
				Level:   logger.ParseLevel(ctx.String("log-level")),
				Format:  ctx.String("log-format"),
				Service: "weather-bot",
				Output:  ctx.App.ErrWriter,
			})

			ctx.App.Metadata = map[string]interface{}{
				"logger": log,
			}
			return nil
		},
		Commands: []*cli.Command{
			ServeCommand(),
			LookupCommand(),
			ConfigCommand(),
			HealthCommand(),
		},
	}
}
