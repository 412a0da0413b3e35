package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/weather_chatbot/pkg/logger"
)

// HealthCommand returns the command probing a running bot's liveness endpoint.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check health of a running bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Value:   "localhost",
				Usage:   "Host of the ops server",
				EnvVars: []string{"HEALTH_HOST"},
			},
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "Port of the ops server",
				EnvVars: []string{"HTTP_PORT"},
			},
			&cli.StringFlag{
				Name:    "path",
				Value:   "/health/live",
				Usage:   "Health endpoint path",
				EnvVars: []string{"HEALTH_LIVENESS_PATH"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 3 * time.Second,
				Usage: "Request timeout",
			},
		},
		Action: healthAction,
	}
}

func healthAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	url := fmt.Sprintf("http://%s:%d%s", ctx.String("host"), ctx.Int("port"), ctx.String("path"))
	client := &http.Client{Timeout: ctx.Duration("timeout")}

	req, err := http.NewRequestWithContext(ctx.Context, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Error("Health check failed", logger.StringField("url", url), logger.ErrorField(err))
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Error("Health check failed", logger.StringField("url", url), logger.HTTPStatusField(resp.StatusCode))
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	fmt.Fprintln(ctx.App.Writer, "✅ Health check passed")
	return nil
}
