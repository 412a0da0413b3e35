package middleware

import (
	"context"
	"time"

	"github.com/lewisedginton/weather_chatbot/internal/router"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	"github.com/lewisedginton/weather_chatbot/pkg/prefixed_uuid"
)

// Handler produces the replies for one inbound message. *router.Router
// implements it.
type Handler interface {
	Handle(ctx context.Context, msg router.InboundMessage) []router.Action
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg router.InboundMessage) []router.Action

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg router.InboundMessage) []router.Action {
	return f(ctx, msg)
}

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// ChainMiddleware chains multiple middleware functions together
func ChainMiddleware(middlewares ...Middleware) Middleware {
	return func(handler Handler) Handler {
		// Apply middleware in reverse order so they execute in the order they were passed
		for i := len(middlewares) - 1; i >= 0; i-- {
			handler = middlewares[i](handler)
		}
		return handler
	}
}

// CorrelationID assigns a platform-prefixed correlation ID to the message
// context unless one is already present.
func CorrelationID() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, msg router.InboundMessage) []router.Action {
			if logger.GetCorrelationIDFromContext(ctx) == "" {
				ctx = logger.WithCorrelationIDContext(ctx, prefixed_uuid.NewCorrelationID(msg.Platform))
			}
			return next.Handle(ctx, msg)
		})
	}
}

// Timeout bounds the wrapped handler's context.
func Timeout(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, msg router.InboundMessage) []router.Action {
			if timeout <= 0 {
				return next.Handle(ctx, msg)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next.Handle(ctx, msg)
		})
	}
}

// MessageLogging logs each message on arrival and after its replies are built.
func MessageLogging(log logger.Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, msg router.InboundMessage) []router.Action {
			start := time.Now()

			msgLogger := logger.GetLoggerFromContext(ctx, log).WithFields(
				logger.PlatformField(msg.Platform),
				logger.ChatIDField(msg.ChatID),
				logger.UserIDField(msg.UserID),
				logger.StringField("username", msg.Username),
			)

			msgLogger.Info("Message received")
			msgLogger.Debug("Message text", logger.StringField("text", msg.Text))

			actions := next.Handle(ctx, msg)

			msgLogger.Info("Message handled",
				logger.IntField("actions", len(actions)),
				logger.DurationField("duration", time.Since(start)),
			)
			return actions
		})
	}
}

// Default returns the standard chain for transports: correlation ID,
// logging, panic recovery, then the per-message timeout.
func Default(log logger.Logger, recovery RecoveryConfig, timeout time.Duration) Middleware {
	if recovery.Logger == nil {
		recovery.Logger = log
	}
	return ChainMiddleware(
		CorrelationID(),
		MessageLogging(log),
		Recovery(recovery),
		Timeout(timeout),
	)
}
