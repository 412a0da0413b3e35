// Package weather fetches current conditions for a city from weatherapi.com
// and renders them as a chat-ready summary.
package weather

import (
	"errors"
	"time"
)

const (
	// DefaultBaseURL is the weatherapi.com v1 endpoint root.
	DefaultBaseURL = "http://api.weatherapi.com/v1"
	// DefaultLang is the locale passed as the lang query parameter.
	DefaultLang = "ru"
	// DefaultTimeout bounds a single lookup.
	DefaultTimeout = 10 * time.Second
	// DefaultIconScheme is prepended to protocol-relative icon paths.
	DefaultIconScheme = "http:"
)

var (
	// ErrCityNotFound is returned when the provider reports an error for the query.
	ErrCityNotFound = errors.New("city not found")
	// ErrTransport covers network faults, timeouts, bad status codes and malformed bodies.
	ErrTransport = errors.New("weather transport error")
)

// FailureReason classifies a failed lookup.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	ReasonNotFound
	ReasonTransport
)

// String returns the label used in logs and metrics.
func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "ok"
	case ReasonNotFound:
		return "not_found"
	default:
		return "transport"
	}
}

// Reason maps an error returned by Fetch onto a FailureReason. Errors that are
// neither ErrCityNotFound nor ErrTransport are treated as transport failures.
func Reason(err error) FailureReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrCityNotFound):
		return ReasonNotFound
	default:
		return ReasonTransport
	}
}

// Report is a successful lookup.
type Report struct {
	// Summary is the multi-line text sent to the user.
	Summary string
	// IconURL is the absolute URL of the condition icon.
	IconURL string

	City      string
	Country   string
	TempC     float64
	Condition string
	Humidity  float64
	WindKPH   float64
}

// Config holds configuration for the weather client
type Config struct {
	APIKey     string
	BaseURL    string
	Lang       string
	Timeout    time.Duration
	IconScheme string
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Lang == "" {
		c.Lang = DefaultLang
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.IconScheme == "" {
		c.IconScheme = DefaultIconScheme
	}
	return c
}
