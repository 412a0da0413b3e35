package config

import "time"

// BotConfig holds message handling configuration shared by all transports
type BotConfig struct {
	// HandlerTimeout bounds the handling and delivery of one message
	HandlerTimeout time.Duration `env:"BOT_HANDLER_TIMEOUT" yaml:"handler_timeout" default:"15s"`

	// Username is the bot's own username. When set, /start@other is treated
	// as a city instead of a command; when empty any mention is accepted.
	Username string `env:"BOT_USERNAME" yaml:"username"`

	// DisableStackTrace omits stack traces from recovered panic logs
	DisableStackTrace bool `env:"BOT_DISABLE_STACK_TRACE" yaml:"disable_stack_trace"`
}
