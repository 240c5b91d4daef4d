package logger

import (
	"fmt"
	"slices"
	"strings"
)

var (
	validLevels    = []string{"debug", "info", "warn", "error", "dpanic", "panic", "fatal"}
	validEncodings = []string{"json", "console"}
)

// Config is the logging configuration of a feed core.
type Config struct {
	// Level, one of debug, info, warn, error, dpanic, panic, fatal
	// default: "info"
	Level string `mapstructure:"level"`
	// Encoding, json or console
	// default: "json"
	Encoding string `mapstructure:"encoding"`
	// OutputPaths receive log entries.
	// default: []string{"stderr"}
	OutputPaths []string `mapstructure:"output_paths"`
	// ErrorOutputPaths receive the logger's own failures.
	// default: []string{"stderr"}
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:            "info",
		Encoding:         "json",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Level == "" {
		out.Level = d.Level
	}
	if out.Encoding == "" {
		out.Encoding = d.Encoding
	}
	if len(out.OutputPaths) == 0 {
		out.OutputPaths = d.OutputPaths
	}
	if len(out.ErrorOutputPaths) == 0 {
		out.ErrorOutputPaths = d.ErrorOutputPaths
	}
	return &out
}

// Validate checks the level and encoding.
func (c *Config) Validate() error {
	if !slices.Contains(validLevels, c.Level) {
		return ErrInvalidLevel(c.Level, fmt.Errorf("must be one of: %s", strings.Join(validLevels, ", ")))
	}
	if !slices.Contains(validEncodings, c.Encoding) {
		return ErrInvalidEncoding(c.Encoding)
	}
	return nil
}
