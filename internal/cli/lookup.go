package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/weather_chatbot/internal/connectors/executor"
	"github.com/lewisedginton/weather_chatbot/internal/router"
	"github.com/lewisedginton/weather_chatbot/internal/server"
)

const consoleChatID = "console"

// LookupCommand returns the command that runs a single message through the
// bot and prints the replies.
func LookupCommand() *cli.Command {
	return &cli.Command{
		Name:      "lookup",
		Aliases:   []string{"l"},
		Usage:     "Send one message to the bot and print its replies",
		ArgsUsage: "<city or /command>",
		Action:    lookupAction,
	}
}

func lookupAction(ctx *cli.Context) error {
	text := strings.Join(ctx.Args().Slice(), " ")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("a city is required: weather-bot lookup <city>")
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	log := configLogger(ctx, cfg)

	bot := server.NewBot(&cfg, log, nil)
	exec, err := executor.NewExecutor(bot.Handler, executor.WithLogger(log))
	if err != nil {
		return err
	}

	msg := router.InboundMessage{
		Platform: router.PlatformConsole,
		ChatID:   consoleChatID,
		UserID:   consoleChatID,
		Text:     text,
	}
	return exec.Execute(ctx.Context, msg, consoleDeliver(ctx.App.Writer))
}

// consoleDeliver prints actions to w, one block per action.
func consoleDeliver(w io.Writer) executor.DeliverFunc {
	return func(_ context.Context, actions []router.Action) error {
		for _, a := range actions {
			var err error
			switch a.Kind {
			case router.SendPhoto:
				_, err = fmt.Fprintf(w, "[photo] %s\n", a.PhotoURL)
			case router.SendText:
				_, err = fmt.Fprintln(w, a.Text)
				for _, row := range a.Keyboard {
					if err != nil {
						break
					}
					_, err = fmt.Fprintf(w, "[keyboard] %s\n", strings.Join(row, " | "))
				}
			default:
				err = fmt.Errorf("unsupported action kind %s", a.Kind)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}
}
