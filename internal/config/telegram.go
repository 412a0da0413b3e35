package config

import (
	"fmt"
	"strconv"
	"strings"
)

// TelegramConfig holds Telegram-specific configuration
type TelegramConfig struct {
	BotToken string `env:"TELEGRAM_BOT_TOKEN" yaml:"bot_token"`
	Debug    bool   `env:"TELEGRAM_DEBUG" yaml:"debug"`
}

// Enabled returns true if Telegram is configured with a bot token
func (c *TelegramConfig) Enabled() bool {
	return c.BotToken != ""
}

// validate checks the token has BotFather's "<bot id>:<secret>" shape.
func (c *TelegramConfig) validate() error {
	if c.BotToken == "" {
		return nil
	}
	id, secret, ok := strings.Cut(c.BotToken, ":")
	if !ok || secret == "" {
		return fmt.Errorf("telegram bot_token must have the form <bot id>:<secret>")
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return fmt.Errorf("telegram bot_token must start with a numeric bot id")
	}
	return nil
}
