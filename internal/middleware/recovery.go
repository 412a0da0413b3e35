// Package middleware provides message handler middleware components.
package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/lewisedginton/weather_chatbot/internal/router"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	"github.com/lewisedginton/weather_chatbot/pkg/metrics"
)

// RecoveryConfig holds configuration for the recovery middleware
type RecoveryConfig struct {
	Logger           logger.Logger
	Metrics          *metrics.Metrics // Optional: counts recovered panics
	EnableStackTrace bool             // Whether to log full stack traces
	ResponseText     string           // Reply sent to the user after a panic
}

// DefaultRecoveryConfig returns a sensible default configuration
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		EnableStackTrace: true,
		ResponseText:     router.TransportErrorText,
	}
}

// Recovery returns a middleware that recovers from panics in the wrapped
// handler, logs them and replies with config.ResponseText.
func Recovery(config RecoveryConfig) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, msg router.InboundMessage) (actions []router.Action) {
			defer func() {
				if err := recover(); err != nil {
					actions = handlePanic(ctx, msg, err, config)
				}
			}()

			return next.Handle(ctx, msg)
		})
	}
}

// handlePanic handles a recovered panic
func handlePanic(ctx context.Context, msg router.InboundMessage, err interface{}, config RecoveryConfig) []router.Action {
	var stackTrace string
	if config.EnableStackTrace {
		stackTrace = string(debug.Stack())
	}

	logPanic(ctx, msg, err, stackTrace, config.Logger)
	config.Metrics.IncrementMessageCounter(metrics.MessageMetricTotalRecovered)

	if config.ResponseText == "" {
		return nil
	}
	return []router.Action{{Kind: router.SendText, ChatID: msg.ChatID, Text: config.ResponseText}}
}

// logPanic logs panic information
func logPanic(ctx context.Context, msg router.InboundMessage, panicErr interface{}, stackTrace string, log logger.Logger) {
	if log == nil {
		// Fallback to basic logging if no logger provided
		fmt.Printf("PANIC: %v\nMessage: %s chat %s\nStack:\n%s\n",
			panicErr, msg.Platform, msg.ChatID, stackTrace)
		return
	}

	fields := []logger.LogField{
		logger.StringField("panic_error", fmt.Sprintf("%v", panicErr)),
		logger.PlatformField(msg.Platform),
		logger.ChatIDField(msg.ChatID),
		logger.UserIDField(msg.UserID),
	}

	if stackTrace != "" {
		fields = append(fields, logger.StringField("stack_trace", stackTrace))
	}

	logger.GetLoggerFromContext(ctx, log).Error("Message handler panic recovered", fields...)
}
