// Package slack connects the message router to Slack over Socket Mode.
package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lewisedginton/weather_chatbot/internal/connectors/executor"
	"github.com/lewisedginton/weather_chatbot/internal/middleware"
	"github.com/lewisedginton/weather_chatbot/internal/router"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	"github.com/lewisedginton/weather_chatbot/pkg/metrics"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// ErrNotConnected is reported by Ready while the Socket Mode session is down.
var ErrNotConnected = errors.New("slack socket mode not connected")

// photoAltText is the alt text of the weather icon image block.
const photoAltText = "Погода"

// Sender posts messages to a channel. *slack.Client implements it.
type Sender interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Connector represents the Slack Socket Mode connector
type Connector struct {
	client     *slack.Client
	socketMode *socketmode.Client
	sender     Sender
	exec       *executor.Executor
	log        logger.Logger
	metrics    *metrics.Metrics

	botUserID string
	connected atomic.Bool
}

// Config holds configuration for the Slack connector
type Config struct {
	BotToken       string // xoxb-*
	AppToken       string // xapp-*
	Debug          bool
	HandlerTimeout time.Duration
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

// NewConnector creates a new Slack connector
func NewConnector(config Config, handler middleware.Handler, opts ...Option) (*Connector, error) {
	if !strings.HasPrefix(config.BotToken, "xoxb-") {
		return nil, fmt.Errorf("invalid bot token format, expected xoxb-*")
	}
	if !strings.HasPrefix(config.AppToken, "xapp-") {
		return nil, fmt.Errorf("invalid app token format, expected xapp-*")
	}

	client := slack.New(
		config.BotToken,
		slack.OptionAppLevelToken(config.AppToken),
		slack.OptionDebug(config.Debug),
	)

	connector, err := newConnector(client, handler, config.HandlerTimeout, opts...)
	if err != nil {
		return nil, err
	}
	connector.client = client
	connector.socketMode = socketmode.New(client, socketmode.OptionDebug(config.Debug))

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
	c.log = c.log.WithFields(logger.PlatformField(router.PlatformSlack))

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

// Start runs the Socket Mode session until ctx is cancelled, then waits for
// in-flight messages to finish.
func (c *Connector) Start(ctx context.Context) error {
	c.log.Info("Starting Slack Socket Mode connector")

	auth, err := c.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test failed: %w", err)
	}
	c.botUserID = auth.UserID
	c.log.Info("Slack bot authenticated",
		logger.StringField("bot_user_id", auth.UserID),
		logger.StringField("team", auth.Team),
	)

	go c.handleEvents(ctx)

	err = c.socketMode.RunContext(ctx)

	c.connected.Store(false)
	c.exec.Wait()
	c.log.Info("Slack connector stopped")

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("socket mode session failed: %w", err)
	}
	return nil
}

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case envelope, ok := <-c.socketMode.Events:
			if !ok {
				return
			}

			switch envelope.Type {
			case socketmode.EventTypeConnecting:
				c.log.Debug("Connecting to Slack with Socket Mode")

			case socketmode.EventTypeConnectionError:
				c.connected.Store(false)
				c.log.Warn("Slack connection failed", logger.Field("detail", envelope.Data))

			case socketmode.EventTypeConnected:
				c.connected.Store(true)
				c.log.Info("Connected to Slack with Socket Mode")

			case socketmode.EventTypeHello:
				// Hello confirms the WebSocket connection

			case socketmode.EventTypeEventsAPI:
				if envelope.Request != nil {
					c.socketMode.Ack(*envelope.Request)
				}
				eventsAPIEvent, ok := envelope.Data.(slackevents.EventsAPIEvent)
				if !ok {
					c.log.Debug("Ignored malformed Events API envelope")
					continue
				}
				c.handleEventsAPI(ctx, eventsAPIEvent)

			case socketmode.EventTypeInteractive, socketmode.EventTypeSlashCommand:
				// Acknowledged so Slack stops retrying; neither is used
				if envelope.Request != nil {
					c.socketMode.Ack(*envelope.Request)
				}

			default:
				c.log.Debug("Unsupported event type received", logger.StringField("event_type", string(envelope.Type)))
			}
		}
	}
}

// handleEventsAPI turns direct messages and app mentions into inbound
// messages for the executor.
func (c *Connector) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}

	var (
		msg router.InboundMessage
		ok  bool
	)
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		msg, ok = c.fromMessageEvent(ev)
	case *slackevents.AppMentionEvent:
		msg, ok = c.fromAppMention(ev)
	}
	if !ok {
		return
	}

	c.exec.Submit(ctx, msg, c.dispatch)
}

// fromMessageEvent accepts plain user messages in direct message channels.
// Channel messages only reach the bot as app mentions.
func (c *Connector) fromMessageEvent(ev *slackevents.MessageEvent) (router.InboundMessage, bool) {
	if ev.BotID != "" || ev.SubType != "" || ev.Text == "" {
		return router.InboundMessage{}, false
	}
	if c.botUserID != "" && ev.User == c.botUserID {
		return router.InboundMessage{}, false
	}
	if ev.ChannelType != "im" && !strings.HasPrefix(ev.Channel, "D") {
		return router.InboundMessage{}, false
	}

	return router.InboundMessage{
		Platform: router.PlatformSlack,
		ChatID:   ev.Channel,
		UserID:   ev.User,
		Text:     ev.Text,
	}, true
}

func (c *Connector) fromAppMention(ev *slackevents.AppMentionEvent) (router.InboundMessage, bool) {
	if ev.BotID != "" {
		return router.InboundMessage{}, false
	}

	text := removeBotMention(ev.Text, c.botUserID)
	if text == "" {
		return router.InboundMessage{}, false
	}

	return router.InboundMessage{
		Platform: router.PlatformSlack,
		ChatID:   ev.Channel,
		UserID:   ev.User,
		Text:     text,
	}, true
}

// removeBotMention strips <@BOT> tokens from text. Without a known bot user
// ID only a leading mention is removed.
func removeBotMention(text, botUserID string) string {
	if botUserID != "" {
		text = strings.ReplaceAll(text, "<@"+botUserID+">", "")
	} else if strings.HasPrefix(text, "<@") {
		if end := strings.Index(text, ">"); end != -1 {
			text = text[end+1:]
		}
	}
	return strings.TrimSpace(text)
}

// dispatch posts actions in order and stops at the first failure. Reply
// keyboards have no Slack equivalent and are dropped.
func (c *Connector) dispatch(ctx context.Context, actions []router.Action) error {
	for i, action := range actions {
		var opts []slack.MsgOption
		switch action.Kind {
		case router.SendPhoto:
			opts = []slack.MsgOption{
				slack.MsgOptionText(photoAltText, false),
				slack.MsgOptionBlocks(slack.NewImageBlock(action.PhotoURL, photoAltText, "", nil)),
			}
		case router.SendText:
			opts = []slack.MsgOption{slack.MsgOptionText(action.Text, false)}
		default:
			return fmt.Errorf("action %d: unsupported action kind %d", i, action.Kind)
		}

		if _, _, err := c.sender.PostMessageContext(ctx, action.ChatID, opts...); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, action.Kind, err)
		}
	}
	return nil
}

// Stop waits for messages that are still being handled. The Socket Mode
// session itself ends when the Start context is cancelled.
func (c *Connector) Stop() error {
	c.log.Info("Stopping Slack connector")
	c.connected.Store(false)
	c.exec.Wait()
	return nil
}

// Ready reports whether the Socket Mode session is connected.
func (c *Connector) Ready() error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	return nil
}
