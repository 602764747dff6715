package config

import (
	"log/slog"
	"strings"
)

// Log output formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// LogConfig controls the process-wide slog handler.
type LogConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	// AddSource records the file and line of each log call.
	AddSource bool `env:"ADD_SOURCE" envDefault:"false"`
}

// Sanitize lowercases the settings and falls back to info/json for unknown values.
func (c *LogConfig) Sanitize() {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	if _, ok := logLevels[c.Level]; !ok {
		c.Level = "info"
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format != LogFormatText {
		c.Format = LogFormatJSON
	}
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel returns the configured level, info when unset or unknown.
func (c LogConfig) SlogLevel() slog.Level {
	if lvl, ok := logLevels[strings.ToLower(strings.TrimSpace(c.Level))]; ok {
		return lvl
	}
	return slog.LevelInfo
}
