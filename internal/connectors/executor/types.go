package executor

import (
	"context"
	"time"

	"github.com/lewisedginton/weather_chatbot/internal/router"
	"github.com/lewisedginton/weather_chatbot/pkg/logger"
	"github.com/lewisedginton/weather_chatbot/pkg/metrics"
)

// DefaultDeliveryTimeout bounds the sending of one message's replies.
const DefaultDeliveryTimeout = 15 * time.Second

// DeliverFunc sends the actions produced for one message on a transport, in
// order, stopping at the first failure.
type DeliverFunc func(ctx context.Context, actions []router.Action) error

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Executor) {
		e.log = l
	}
}

// WithMetrics enables the message counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithDeliveryTimeout overrides DefaultDeliveryTimeout. Non-positive values
// are ignored.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.deliveryTimeout = d
		}
	}
}
