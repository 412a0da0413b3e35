package config

import (
	"time"

	"github.com/lewisedginton/weather_chatbot/internal/weather"
)

// WeatherConfig holds weatherapi.com client configuration
type WeatherConfig struct {
	APIKey     string        `env:"WEATHER_API_KEY" yaml:"api_key"`
	BaseURL    string        `env:"WEATHER_API_URL" yaml:"base_url" default:"http://api.weatherapi.com/v1"`
	Lang       string        `env:"WEATHER_LANG" yaml:"lang" default:"ru"`
	Timeout    time.Duration `env:"WEATHER_TIMEOUT" yaml:"timeout" default:"10s"`
	IconScheme string        `env:"WEATHER_ICON_SCHEME" yaml:"icon_scheme" default:"http:"`
}

// ClientConfig converts to the weather client's configuration.
func (c WeatherConfig) ClientConfig() weather.Config {
	return weather.Config{
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Lang:       c.Lang,
		Timeout:    c.Timeout,
		IconScheme: c.IconScheme,
	}
}
