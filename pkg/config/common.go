package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// CommonConfig holds common configuration shared across all services
type CommonConfig struct {
	// LogLevel specifies the minimum log level to output
	// Valid values: debug, info, warn, error
	LogLevel string `env:"LOG_LEVEL" yaml:"log_level" default:"info"`

	// LogFormat selects the log encoder. Valid values: json, text, or empty
	// to let the service pick one
	LogFormat string `env:"LOG_FORMAT" yaml:"log_format"`
}

// Validate checks CommonConfig for valid log level and format
func (c CommonConfig) Validate() error {
	var result error
	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	level := strings.ToLower(c.LogLevel)

	valid := false
	for _, validLevel := range validLevels {
		if level == validLevel {
			valid = true
			break
		}
	}

	if !valid {
		result = multierror.Append(result, fmt.Errorf("log_level must be one of [debug, info, warn, error], got %q", c.LogLevel))
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "json", "text":
	default:
		result = multierror.Append(result, fmt.Errorf("log_format must be one of [json, text], got %q", c.LogFormat))
	}

	return result
}
