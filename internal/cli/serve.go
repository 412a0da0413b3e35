package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/weather_chatbot/internal/server"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
)

// ServeCommand returns the command that runs the bot until interrupted.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run the bot on every configured transport",
		Action:  serveAction,
	}
}

func serveAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		getLogger(ctx).Error("Failed to load configuration", logger.ErrorField(err))
		return err
	}
	if err := cfg.RequireTransport(); err != nil {
		getLogger(ctx).Error("Invalid configuration", logger.ErrorField(err))
		return err
	}

	log := configLogger(ctx, cfg)
	cfg.LogConfig(log)

	s, err := server.New(&cfg, log)
	if err != nil {
		log.Error("Failed to create server", logger.ErrorField(err))
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := s.Serve(); err != nil {
		log.Error("Server exited with error", logger.ErrorField(err))
		return err
	}

	log.Info("Server exited gracefully")
	return nil
}
