// Package telegram connects the message router to a Telegram bot via long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/lewisedginton/weather_chatbot/internal/connectors/executor"
	"github.com/lewisedginton/weather_chatbot/internal/middleware"
	"github.com/lewisedginton/weather_chatbot/internal/router"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	"github.com/lewisedginton/weather_chatbot/pkg/metrics"
)

// ErrNotPolling is reported by Ready before Start or after polling stops.
var ErrNotPolling = errors.New("telegram polling not running")

// Sender is the subset of the Bot API the connector calls. *bot.Bot implements it.
type Sender interface {
	GetMe(ctx context.Context) (*models.User, error)
	SetMyCommands(ctx context.Context, params *bot.SetMyCommandsParams) (bool, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
}

// Connector represents the Telegram connector
type Connector struct {
	bot     *bot.Bot
	sender  Sender
	exec    *executor.Executor
	log     logger.Logger
	metrics *metrics.Metrics

	commands     []router.Command
	onIdentified func(username string)

	polling atomic.Bool
}

// Config holds configuration for the Telegram connector
type Config struct {
	BotToken       string        // Bot token from @BotFather
	Debug          bool          // Enable debug logging
	HandlerTimeout time.Duration // Reply delivery deadline, executor.DefaultDeliveryTimeout if zero
}

// Option configures a Connector.
type Option func(*Connector)

// WithLogger sets the connector logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Connector) {
		c.log = l
	}
}

// WithMetrics enables the message delivery counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connector) {
		c.metrics = m
	}
}

// WithCommands sets the command menu published with setMyCommands on Start.
func WithCommands(commands []router.Command) Option {
	return func(c *Connector) {
		c.commands = commands
	}
}

// WithOnIdentified registers fn to receive the bot's username once getMe
// succeeds on Start.
func WithOnIdentified(fn func(username string)) Option {
	return func(c *Connector) {
		c.onIdentified = fn
	}
}

// NewConnector creates a new Telegram connector. The token is verified with
// a getMe call.
func NewConnector(config Config, handler middleware.Handler, opts ...Option) (*Connector, error) {
	if config.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	connector, err := newConnector(nil, handler, config.HandlerTimeout, opts...)
	if err != nil {
		return nil, err
	}

	botOpts := []bot.Option{
		bot.WithDefaultHandler(connector.handleUpdate),
	}
	if config.Debug {
		botOpts = append(botOpts, bot.WithDebug())
	}

	b, err := bot.New(config.BotToken, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	connector.bot = b
	connector.sender = b
	connector.log.Info("Telegram bot initialized")

	return connector, nil
}

func newConnector(sender Sender, handler middleware.Handler, handlerTimeout time.Duration, opts ...Option) (*Connector, error) {
	c := &Connector{
		sender: sender,
		log:    logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithFields(logger.PlatformField(router.PlatformTelegram))

	exec, err := executor.NewExecutor(handler,
		executor.WithLogger(c.log),
		executor.WithMetrics(c.metrics),
		executor.WithDeliveryTimeout(handlerTimeout),
	)
	if err != nil {
		return nil, err
	}
	c.exec = exec

	return c, nil
}

// Start polls for updates until ctx is cancelled, then waits for in-flight
// messages to finish.
func (c *Connector) Start(ctx context.Context) error {
	c.prepare(ctx)

	c.log.Info("Starting Telegram bot polling")
	c.polling.Store(true)

	// Blocks until ctx is cancelled
	c.bot.Start(ctx)

	c.polling.Store(false)
	c.exec.Wait()
	c.log.Info("Telegram bot polling stopped")

	return nil
}

// prepare identifies the bot and publishes its command menu. Failures are
// logged and do not stop polling.
func (c *Connector) prepare(ctx context.Context) {
	me, err := c.sender.GetMe(ctx)
	if err != nil {
		c.log.Warn("Failed to get Telegram bot info", logger.ErrorField(err))
	} else {
		c.log.Info("Telegram bot connected",
			logger.StringField("bot_username", me.Username),
			logger.StringField("bot_first_name", me.FirstName),
		)
		if c.onIdentified != nil && me.Username != "" {
			c.onIdentified(me.Username)
		}
	}

	if len(c.commands) == 0 {
		return
	}
	botCommands := make([]models.BotCommand, 0, len(c.commands))
	for _, cmd := range c.commands {
		botCommands = append(botCommands, models.BotCommand{Command: cmd.Name, Description: cmd.Description})
	}
	if _, err := c.sender.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: botCommands}); err != nil {
		c.log.Warn("Failed to register bot commands", logger.ErrorField(err))
	}
}

// Stop waits for messages that are still being handled.
func (c *Connector) Stop() error {
	c.log.Info("Stopping Telegram connector")
	c.polling.Store(false)
	c.exec.Wait()
	return nil
}

// Ready reports whether the connector is polling for updates.
func (c *Connector) Ready() error {
	if !c.polling.Load() {
		return ErrNotPolling
	}
	return nil
}

// handleUpdate is the bot's default handler. Each text message is handed to
// the executor, which answers it on its own goroutine.
func (c *Connector) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg, ok := toInboundMessage(update)
	if !ok {
		c.log.Debug("Skipping non-text or bot-authored update")
		return
	}

	c.exec.Submit(ctx, msg, c.dispatch)
}

func toInboundMessage(update *models.Update) (router.InboundMessage, bool) {
	if update == nil || update.Message == nil || update.Message.Text == "" {
		return router.InboundMessage{}, false
	}

	msg := router.InboundMessage{
		Platform: router.PlatformTelegram,
		ChatID:   strconv.FormatInt(update.Message.Chat.ID, 10),
		Text:     update.Message.Text,
	}

	if from := update.Message.From; from != nil {
		if from.IsBot {
			return router.InboundMessage{}, false
		}
		msg.UserID = strconv.FormatInt(from.ID, 10)
		msg.Username = from.Username
	}

	return msg, true
}

// dispatch sends actions in order and stops at the first failure.
func (c *Connector) dispatch(ctx context.Context, actions []router.Action) error {
	for i, action := range actions {
		chatID, err := strconv.ParseInt(action.ChatID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chat id %q: %w", action.ChatID, err)
		}

		switch action.Kind {
		case router.SendPhoto:
			_, err = c.sender.SendPhoto(ctx, &bot.SendPhotoParams{
				ChatID: chatID,
				Photo:  &models.InputFileString{Data: action.PhotoURL},
			})
		case router.SendText:
			params := &bot.SendMessageParams{
				ChatID: chatID,
				Text:   action.Text,
			}
			if len(action.Keyboard) > 0 {
				params.ReplyMarkup = replyKeyboard(action.Keyboard)
			}
			_, err = c.sender.SendMessage(ctx, params)
		default:
			err = fmt.Errorf("unsupported action kind %d", action.Kind)
		}

		if err != nil {
			return fmt.Errorf("action %d (%s): %w", i, action.Kind, err)
		}
	}
	return nil
}

func replyKeyboard(rows [][]string) *models.ReplyKeyboardMarkup {
	keyboard := make([][]models.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]models.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, models.KeyboardButton{Text: label})
		}
		keyboard = append(keyboard, buttons)
	}
	return &models.ReplyKeyboardMarkup{
		Keyboard:       keyboard,
		ResizeKeyboard: true,
	}
}
