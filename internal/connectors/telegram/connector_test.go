package telegram

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/lewisedginton/weather_chatbot/internal/middleware"
	"github.com/lewisedginton/weather_chatbot/internal/router"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	"github.com/lewisedginton/weather_chatbot/pkg/metrics"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentCall struct {
	kind   string
	chatID any
	text   string
	photo  string
	markup models.ReplyMarkup
}

// fakeSender records Bot API calls in order.
type fakeSender struct {
	mu       sync.Mutex
	calls    []sentCall
	photoErr error

	me          *models.User
	meErr       error
	commands    []models.BotCommand
	commandsErr error
}

func (f *fakeSender) GetMe(context.Context) (*models.User, error) {
	if f.meErr != nil {
		return nil, f.meErr
	}
	if f.me == nil {
		return &models.User{}, nil
	}
	return f.me, nil
}

func (f *fakeSender) SetMyCommands(_ context.Context, params *bot.SetMyCommandsParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commandsErr != nil {
		return false, f.commandsErr
	}
	f.commands = append(f.commands, params.Commands...)
	return true, nil
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCall{kind: "text", chatID: params.ChatID, text: params.Text, markup: params.ReplyMarkup})
	return &models.Message{}, nil
}

func (f *fakeSender) SendPhoto(_ context.Context, params *bot.SendPhotoParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.photoErr != nil {
		return nil, f.photoErr
	}
	photo := ""
	if p, ok := params.Photo.(*models.InputFileString); ok {
		photo = p.Data
	}
	f.calls = append(f.calls, sentCall{kind: "photo", chatID: params.ChatID, photo: photo})
	return &models.Message{}, nil
}

func (f *fakeSender) sent() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCall(nil), f.calls...)
}

func textUpdate(chatID int64, text string) *models.Update {
	return &models.Update{
		Message: &models.Message{
			Chat: models.Chat{ID: chatID},
			From: &models.User{ID: 7, Username: "alice"},
			Text: text,
		},
	}
}

func staticHandler(actions func(msg router.InboundMessage) []router.Action) middleware.Handler {
	return middleware.HandlerFunc(func(_ context.Context, msg router.InboundMessage) []router.Action {
		return actions(msg)
	})
}

func TestHandleUpdate_SendsPhotoThenText(t *testing.T) {
	sender := &fakeSender{}
	handler := staticHandler(func(msg router.InboundMessage) []router.Action {
		return []router.Action{
			{Kind: router.SendPhoto, ChatID: msg.ChatID, PhotoURL: "http://x.com/icon.png"},
			{Kind: router.SendText, ChatID: msg.ChatID, Text: "15°C London"},
		}
	})
	c := mustConnector(t, sender, handler, time.Second)

	c.handleUpdate(context.Background(), nil, textUpdate(-100123, "London"))
	require.NoError(t, c.Stop())

	calls := sender.sent()
	require.Len(t, calls, 2)
	assert.Equal(t, "photo", calls[0].kind)
	assert.Equal(t, int64(-100123), calls[0].chatID)
	assert.Equal(t, "http://x.com/icon.png", calls[0].photo)
	assert.Equal(t, "text", calls[1].kind)
	assert.Equal(t, "15°C London", calls[1].text)
	assert.Nil(t, calls[1].markup)
}

func TestHandleUpdate_AttachesKeyboard(t *testing.T) {
	sender := &fakeSender{}
	handler := staticHandler(func(msg router.InboundMessage) []router.Action {
		return []router.Action{{Kind: router.SendText, ChatID: msg.ChatID, Text: "hi", Keyboard: router.WelcomeKeyboard()}}
	})
	c := mustConnector(t, sender, handler, time.Second)

	c.handleUpdate(context.Background(), nil, textUpdate(42, "/start"))
	require.NoError(t, c.Stop())

	calls := sender.sent()
	require.Len(t, calls, 1)
	markup, ok := calls[0].markup.(*models.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, markup.ResizeKeyboard)
	require.Len(t, markup.Keyboard, 2)
	assert.Equal(t, "Справка", markup.Keyboard[0][0].Text)
	assert.Equal(t, "Погода", markup.Keyboard[1][0].Text)
}

func TestHandleUpdate_Skips(t *testing.T) {
	testCases := []struct {
		name   string
		update *models.Update
	}{
		{"nil update", nil},
		{"no message", &models.Update{}},
		{"empty text", textUpdate(1, "")},
		{"bot author", &models.Update{Message: &models.Message{
			Chat: models.Chat{ID: 1},
			From: &models.User{ID: 2, IsBot: true},
			Text: "London",
		}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			handler := staticHandler(func(router.InboundMessage) []router.Action {
				called = true
				return nil
			})
			c := mustConnector(t, &fakeSender{}, handler, time.Second)

			c.handleUpdate(context.Background(), nil, tc.update)
			require.NoError(t, c.Stop())

			assert.False(t, called)
		})
	}
}

func TestToInboundMessage(t *testing.T) {
	msg, ok := toInboundMessage(textUpdate(-42, "Moscow"))

	require.True(t, ok)
	assert.Equal(t, router.InboundMessage{
		Platform: router.PlatformTelegram,
		ChatID:   "-42",
		UserID:   "7",
		Username: "alice",
		Text:     "Moscow",
	}, msg)
}

func TestHandleUpdate_SlowMessageDoesNotBlockOthers(t *testing.T) {
	sender := &fakeSender{}
	release := make(chan struct{})
	handler := staticHandler(func(msg router.InboundMessage) []router.Action {
		if msg.Text == "slow" {
			<-release
		}
		return []router.Action{{Kind: router.SendText, ChatID: msg.ChatID, Text: msg.Text}}
	})
	c := mustConnector(t, sender, handler, time.Second)

	c.handleUpdate(context.Background(), nil, textUpdate(1, "slow"))
	c.handleUpdate(context.Background(), nil, textUpdate(2, "fast"))

	require.Eventually(t, func() bool {
		calls := sender.sent()
		return len(calls) == 1 && calls[0].text == "fast"
	}, time.Second, 10*time.Millisecond)

	close(release)
	require.NoError(t, c.Stop())
	assert.Len(t, sender.sent(), 2)
}

func TestHandleUpdate_CancelledPollingContextStillReplies(t *testing.T) {
	sender := &fakeSender{}
	var handlerCtxErr error
	handler := middleware.HandlerFunc(func(ctx context.Context, msg router.InboundMessage) []router.Action {
		handlerCtxErr = ctx.Err()
		return []router.Action{{Kind: router.SendText, ChatID: msg.ChatID, Text: "ok"}}
	})
	c := mustConnector(t, sender, handler, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.handleUpdate(ctx, nil, textUpdate(1, "London"))
	require.NoError(t, c.Stop())

	assert.NoError(t, handlerCtxErr)
	assert.Len(t, sender.sent(), 1)
}

func TestDispatch_StopsOnFirstFailure(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(logger.Config{Level: logger.InfoLevel, Format: "json", Output: &buf})
	m := metrics.NewMetrics(false, true, logger.NewNopLogger())

	sender := &fakeSender{photoErr: errors.New("Bad Request: wrong file identifier")}
	handler := staticHandler(func(msg router.InboundMessage) []router.Action {
		return []router.Action{
			{Kind: router.SendPhoto, ChatID: msg.ChatID, PhotoURL: "http://x.com/icon.png"},
			{Kind: router.SendText, ChatID: msg.ChatID, Text: "summary"},
		}
	})
	c := mustConnector(t, sender, handler, time.Second, WithLogger(log), WithMetrics(&m))

	c.handleUpdate(context.Background(), nil, textUpdate(1, "London"))
	require.NoError(t, c.Stop())

	assert.Empty(t, sender.sent())
	assert.Contains(t, buf.String(), "Failed to deliver reply")
	assert.Contains(t, buf.String(), "wrong file identifier")
	assert.Contains(t, buf.String(), `"correlation_id":"telegram-`)
	assert.Equal(t, 1.0, counter(t, m, metrics.MessageMetricTotal))
	assert.Equal(t, 1.0, counter(t, m, metrics.MessageMetricTotalFailed))
	assert.Equal(t, 0.0, counter(t, m, metrics.MessageMetricTotalReplied))
}

func TestDispatch_InvalidChatID(t *testing.T) {
	c := mustConnector(t, &fakeSender{}, staticHandler(nil), time.Second)

	err := c.dispatch(context.Background(), []router.Action{{Kind: router.SendText, ChatID: "C0123", Text: "x"}})

	assert.Error(t, err)
}

func TestReady(t *testing.T) {
	c := mustConnector(t, &fakeSender{}, staticHandler(nil), 0)

	assert.ErrorIs(t, c.Ready(), ErrNotPolling)

	c.polling.Store(true)
	assert.NoError(t, c.Ready())

	require.NoError(t, c.Stop())
	assert.ErrorIs(t, c.Ready(), ErrNotPolling)
}

func TestNewConnectorValidation(t *testing.T) {
	_, err := NewConnector(Config{}, staticHandler(nil))
	assert.Error(t, err)

	_, err = NewConnector(Config{BotToken: "123:abc"}, nil)
	assert.Error(t, err)
}

func TestPrepare_PublishesRouterCommands(t *testing.T) {
	sender := &fakeSender{me: &models.User{Username: "weather_bot", FirstName: "Weather"}}
	var identified []string
	c := mustConnector(t, sender, staticHandler(nil), 0,
		WithCommands(router.New(nil).Commands()),
		WithOnIdentified(func(username string) { identified = append(identified, username) }),
	)

	c.prepare(context.Background())

	assert.Equal(t, []models.BotCommand{
		{Command: "start", Description: router.StartDescription},
		{Command: "help", Description: router.HelpDescription},
	}, sender.commands)
	assert.Equal(t, []string{"weather_bot"}, identified)
}

func TestPrepare_FailuresAreLogged(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLogger(logger.Config{Level: logger.DebugLevel, Format: "json", Output: &buf})
	sender := &fakeSender{meErr: errors.New("unauthorized"), commandsErr: errors.New("too many requests")}
	called := false
	c := mustConnector(t, sender, staticHandler(nil), 0,
		WithLogger(log),
		WithCommands([]router.Command{{Name: "start", Description: "Start"}}),
		WithOnIdentified(func(string) { called = true }),
	)

	c.prepare(context.Background())

	assert.False(t, called)
	assert.Contains(t, buf.String(), "Failed to get Telegram bot info")
	assert.Contains(t, buf.String(), "Failed to register bot commands")
}

func TestPrepare_NoCommands(t *testing.T) {
	sender := &fakeSender{}
	c := mustConnector(t, sender, staticHandler(nil), 0)

	c.prepare(context.Background())

	assert.Empty(t, sender.commands)
}

func mustConnector(t *testing.T, sender Sender, handler middleware.Handler, timeout time.Duration, opts ...Option) *Connector {
	t.Helper()
	c, err := newConnector(sender, handler, timeout, opts...)
	require.NoError(t, err)
	return c
}

func counter(t *testing.T, m metrics.Metrics, idx int) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, m.MessageMetricCounters[idx].Write(&metric))
	return metric.GetCounter().GetValue()
}
