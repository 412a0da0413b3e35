// Package executor runs inbound messages through the message handler and
// delivers the resulting actions on behalf of a transport connector.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/lewisedginton/weather_chatbot/internal/middleware"
	"github.com/lewisedginton/weather_chatbot/internal/router"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	"github.com/lewisedginton/weather_chatbot/pkg/metrics"
	"github.com/lewisedginton/weather_chatbot/pkg/prefixed_uuid"
)

type Executor struct {
	handler         middleware.Handler
	log             logger.Logger
	metrics         *metrics.Metrics
	deliveryTimeout time.Duration

	inFlight sync.WaitGroup
}

func NewExecutor(handler middleware.Handler, opts ...Option) (*Executor, error) {
	if handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}

	e := &Executor{
		handler:         handler,
		log:             logger.NewNopLogger(),
		deliveryTimeout: DefaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Execute handles msg and delivers its replies synchronously.
func (e *Executor) Execute(ctx context.Context, msg router.InboundMessage, deliver DeliverFunc) error {
	if deliver == nil {
		return fmt.Errorf("deliver func is required")
	}

	if logger.GetCorrelationIDFromContext(ctx) == "" {
		ctx = logger.WithCorrelationIDContext(ctx, prefixed_uuid.NewCorrelationID(msg.Platform))
	}
	e.metrics.IncrementMessageCounter(metrics.MessageMetricTotal)

	actions := e.handler.Handle(ctx, msg)

	deliverCtx, cancel := context.WithTimeout(ctx, e.deliveryTimeout)
	defer cancel()

	if err := deliver(deliverCtx, actions); err != nil {
		logger.GetLoggerFromContext(ctx, e.log).Error("Failed to deliver reply",
			logger.PlatformField(msg.Platform),
			logger.ChatIDField(msg.ChatID),
			logger.ErrorField(err),
		)
		e.metrics.IncrementMessageCounter(metrics.MessageMetricTotalFailed)
		return fmt.Errorf("failed to deliver reply: %w", err)
	}

	e.metrics.IncrementMessageCounter(metrics.MessageMetricTotalReplied)
	return nil
}

// Submit handles msg on its own goroutine so a slow weather lookup never
// delays other chats. Cancelling ctx does not abort messages already
// submitted; use Wait to drain them.
func (e *Executor) Submit(ctx context.Context, msg router.InboundMessage, deliver DeliverFunc) {
	base := context.WithoutCancel(ctx)

	e.inFlight.Add(1)
	go func() {
		defer e.inFlight.Done()
		defer e.recoverDelivery(base, msg)
		// Failures are logged and counted by Execute
		_ = e.Execute(base, msg, deliver)
	}()
}

// recoverDelivery stops a panic in deliver from taking down the process.
// Handler panics are already caught by the Recovery middleware.
func (e *Executor) recoverDelivery(ctx context.Context, msg router.InboundMessage) {
	r := recover()
	if r == nil {
		return
	}
	logger.GetLoggerFromContext(ctx, e.log).Error("Panic while delivering reply",
		logger.PlatformField(msg.Platform),
		logger.ChatIDField(msg.ChatID),
		logger.StringField("panic", fmt.Sprint(r)),
		logger.StringField("stack", string(debug.Stack())),
	)
	e.metrics.IncrementMessageCounter(metrics.MessageMetricTotalRecovered)
}

// Wait blocks until every submitted message has been handled.
func (e *Executor) Wait() {
	e.inFlight.Wait()
}
